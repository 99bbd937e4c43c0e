package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
)

type inmemStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	pending map[string]struct{}
}

// NewInmemStorage keeps every object in process memory. It backs tests
// and short-lived pipelines.
func NewInmemStorage() Storage {
	return &inmemStorage{
		objects: make(map[string][]byte),
		pending: make(map[string]struct{}),
	}
}

type memWriter struct {
	storage *inmemStorage
	name    string
	buf     bytes.Buffer
	done    bool
}

func (m *memWriter) Write(p []byte) (int, error) {
	if m.done {
		return 0, errObjectIsClosed
	}
	return m.buf.Write(p)
}

func (m *memWriter) Finish() error {
	if m.done {
		return errObjectIsClosed
	}
	m.done = true

	m.storage.mu.Lock()
	defer m.storage.mu.Unlock()
	delete(m.storage.pending, m.name)
	m.storage.objects[m.name] = m.buf.Bytes()
	return nil
}

func (m *memWriter) Abort() {
	if m.done {
		return
	}
	m.done = true

	m.storage.mu.Lock()
	defer m.storage.mu.Unlock()
	delete(m.storage.pending, m.name)
	m.buf.Reset()
}

type memReader struct {
	*bytes.Reader
}

func (mr memReader) Size() int64 {
	return mr.Reader.Size()
}

func (mr memReader) Close() error {
	return nil
}

func (i *inmemStorage) Create(_ context.Context, name string) (Writable, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.objects[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	if _, ok := i.pending[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	i.pending[name] = struct{}{}

	return &memWriter{storage: i, name: name}, nil
}

func (i *inmemStorage) Open(_ context.Context, name string) (Readable, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	data, ok := i.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return memReader{Reader: bytes.NewReader(data)}, nil
}

func (i *inmemStorage) List(_ context.Context, prefix string) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var names []string
	for name := range i.objects {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (i *inmemStorage) Remove(_ context.Context, name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.objects[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(i.objects, name)
	return nil
}

func (i *inmemStorage) Close() error {
	return nil
}

var _ Storage = (*inmemStorage)(nil)
