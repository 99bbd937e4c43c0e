package brickpress

import (
	"context"
	"fmt"

	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/device"
	"github.com/brickpress/brickpress/pipeline"
	"github.com/brickpress/brickpress/storage"
)

// Writer streams input through the accelerator into a storage object.
// It is not safe for concurrent use; one run is a single logical thread
// of control. The run context comes from WithContext, since io.Writer
// leaves no room for one in the signature.
type Writer struct {
	ctx    context.Context
	sink   storage.Writable
	engine *pipeline.Engine
	closed bool
}

// NewWriter opens a compression run over dev that emits into sink. The
// writer owns the sink from here on: Close finishes it, while a failed
// run or an Abort discards the partial object.
func NewWriter(dev device.IDevice, sink storage.Writable, opts ...Opt) (*Writer, error) {
	o := defaultRunOptions()
	for _, fn := range opts {
		fn(o)
	}
	o.resolve(dev)

	eng, err := pipeline.New(dev, sink, o.engineConfig())
	if err != nil {
		return nil, err
	}
	return &Writer{ctx: o.ctx, sink: sink, engine: eng}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("%w: write on a closed writer", common.InvalidConfigError)
	}
	return w.engine.Feed(w.ctx, p)
}

func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.engine.Finish(w.ctx)
	w.engine.Release()
	if err != nil {
		w.sink.Abort()
		return err
	}
	return w.sink.Finish()
}

func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.engine.Release()
	w.sink.Abort()
}

func (w *Writer) Stats() pipeline.Stats {
	return w.engine.Stats()
}

var _ IWriter = (*Writer)(nil)
