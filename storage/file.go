package storage

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Partial objects live next to their final path under this extension
// until Finish renames them into place.
const partialExt = ".partial"

type fileStorage struct {
	dir string
}

// NewFileStorage stores every object as one file under dir. Objects are
// written to a ".partial" sibling and renamed into place on Finish, so
// readers never observe a half-written stream.
func NewFileStorage(dir string) (Storage, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			zap.L().Error("Failed to create dir", zap.String("dirPath", dir), zap.Error(err))
			return nil, err
		}
	}
	return &fileStorage{dir: dir}, nil
}

func (s *fileStorage) objectPath(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

type fileWriter struct {
	f    *os.File
	bufw *bufio.Writer
	path string
	tmp  string
	done bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, errObjectIsClosed
	}
	return w.bufw.Write(p)
}

func (w *fileWriter) Finish() error {
	if w.done {
		return errObjectIsClosed
	}
	w.done = true

	if err := w.bufw.Flush(); err != nil {
		w.discard()
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.discard()
		return err
	}
	if err := w.f.Close(); err != nil {
		w.removeTmp()
		return err
	}
	return os.Rename(w.tmp, w.path)
}

func (w *fileWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *fileWriter) discard() {
	_ = w.f.Close()
	w.removeTmp()
}

func (w *fileWriter) removeTmp() {
	if err := os.Remove(w.tmp); err != nil {
		zap.L().Warn("Failed to remove partial object", zap.String("path", w.tmp), zap.Error(err))
	}
}

type fileReader struct {
	*os.File
	size int64
}

func (r fileReader) Size() int64 {
	return r.size
}

func (s *fileStorage) Create(_ context.Context, name string) (Writable, error) {
	path, err := s.objectPath(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, err
	}

	tmp := path + partialExt
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return nil, err
	}

	return &fileWriter{
		f:    f,
		bufw: bufio.NewWriter(f),
		path: path,
		tmp:  tmp,
	}, nil
}

func (s *fileStorage) Open(_ context.Context, name string) (Readable, error) {
	path, err := s.objectPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return fileReader{File: f, size: st.Size()}, nil
}

func (s *fileStorage) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, partialExt) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			names = append(names, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStorage) Remove(_ context.Context, name string) error {
	path, err := s.objectPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	return nil
}

func (s *fileStorage) Close() error {
	return nil
}

var _ Storage = (*fileStorage)(nil)
