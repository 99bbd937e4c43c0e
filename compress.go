package brickpress

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/brickpress/brickpress/device"
	"github.com/brickpress/brickpress/pipeline"
	"github.com/brickpress/brickpress/storage"
)

const defaultBatchConcurrency = 4

// Compress runs src through the device in one shot, appending the
// container stream to dst. dst may be nil.
func Compress(dev device.IDevice, dst, src []byte, opts ...Opt) ([]byte, error) {
	o := defaultRunOptions()
	for _, fn := range opts {
		fn(o)
	}
	o.resolve(dev)

	buf := bytes.NewBuffer(dst[:0])
	eng, err := pipeline.New(dev, buf, o.engineConfig())
	if err != nil {
		return nil, err
	}
	defer eng.Release()

	if _, err := eng.Feed(o.ctx, src); err != nil {
		return nil, err
	}
	if err := eng.Finish(o.ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress inflates a whole container stream, appending the original
// bytes to dst. dst may be nil. No device is needed.
func Decompress(dst, src []byte) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	buf := bytes.NewBuffer(dst[:0])
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompressReader pumps src through the device into sink. The sink is
// finished on success and aborted on any failure, so a partial object
// never becomes visible.
func CompressReader(dev device.IDevice, sink storage.Writable, src io.Reader, opts ...Opt) error {
	w, err := NewWriter(dev, sink, opts...)
	if err != nil {
		sink.Abort()
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		w.Abort()
		return err
	}
	return w.Close()
}

// Object names one input of a batch run.
type Object struct {
	Name string
	Data io.Reader
}

// CompressObjects compresses every object into store over one shared
// device, a pipelined run per object, bounded by the configured
// concurrency. The first failure cancels the runs still going; objects
// already finished stay.
func CompressObjects(ctx context.Context, dev device.IDevice, store storage.Storage, objects []Object, opts ...Opt) error {
	o := defaultRunOptions()
	for _, fn := range opts {
		fn(o)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency)
	runOpts := append(append([]Opt(nil), opts...), WithContext(ctx))

	for _, obj := range objects {
		eg.Go(func() error {
			w, err := store.Create(ctx, obj.Name)
			if err != nil {
				return err
			}
			return CompressReader(dev, w, obj.Data, runOpts...)
		})
	}
	return eg.Wait()
}
