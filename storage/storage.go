// Package storage provides the object stores compressed streams are
// written to and read from: in-memory for tests, the local filesystem,
// and S3-compatible object storage. An object is conceptually a large
// immutable blob, written once through a Writable and visible to
// readers only after Finish.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when opening or removing an object that
	// does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrExists is returned when creating an object under a name that is
	// already taken.
	ErrExists = errors.New("object already exists")

	errObjectIsClosed = errors.New("object handle is closed")
)

// Writable is the handle for a stream object that is open for writing.
type Writable interface {
	// Write appends len(p) bytes to the object. The data is not
	// guaranteed to be durable, or visible to readers, until Finish is
	// called.
	io.Writer

	// Finish completes the object and makes the data durable.
	// No further calls are allowed after calling Finish.
	Finish() error

	// Abort gives up on finishing the object and discards everything
	// written so far. No further calls are allowed after calling Abort.
	Abort()
}

// Readable is the handle for a stream object that is open for reading.
type Readable interface {
	io.ReadCloser

	// Size returns the object length in bytes.
	Size() int64
}

// Storage is a singleton object used to access and manage stream
// objects by name.
type Storage interface {
	// Create makes a new object and opens it for writing.
	Create(ctx context.Context, name string) (Writable, error)

	// Open opens an existing, finished object read-only.
	Open(ctx context.Context, name string) (Readable, error)

	// List returns the names of finished objects under the prefix, in
	// lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	Remove(ctx context.Context, name string) error

	Close() error
}
