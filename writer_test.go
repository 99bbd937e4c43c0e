package brickpress

import (
	"bytes"
	"context"
	"io"
	mathrand "math/rand"
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/device"
	"github.com/brickpress/brickpress/frame"
	"github.com/brickpress/brickpress/storage"
	storageMocks "github.com/brickpress/brickpress/storage/mocks"
)

// Two bricks and change at the default geometry.
const testPayloadLen = 2*common.DefaultBlockSize*common.DefaultBlocksPerBrick + 3*common.DefaultBlockSize + 41

func textPayload(tb testing.TB, n int) []byte {
	tb.Helper()
	quote := struct {
		Sentence string `faker:"sentence"`
	}{}
	require.NoError(tb, faker.FakeData(&quote))

	buf := make([]byte, 0, n+len(quote.Sentence))
	for len(buf) < n {
		buf = append(buf, quote.Sentence...)
	}
	return buf[:n]
}

func noisePayload(n int) []byte {
	buf := make([]byte, n)
	rnd := mathrand.New(mathrand.NewSource(131))
	rnd.Read(buf)
	return buf
}

func TestWriter_RoundTripThroughStorage(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()
	store := storage.NewInmemStorage()
	ctx := context.Background()
	payload := textPayload(t, testPayloadLen)

	// 1. Compress into an object.
	sink, err := store.Create(ctx, "logs/app.lz4")
	require.NoError(t, err)
	w, err := NewWriter(dev, sink)
	require.NoError(t, err)
	n, err := w.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, w.Close())

	// 2. The run accounting matches the geometry.
	st := w.Stats()
	assert.Equal(t, int64(3), st.Bricks)
	assert.Equal(t, int64(len(payload)), st.BytesIn)
	assert.Less(t, st.BytesOut, st.BytesIn, "text should compress")

	// 3. Read the object back through the streaming decompressor.
	rd, err := store.Open(ctx, "logs/app.lz4")
	require.NoError(t, err)
	defer func() { require.NoError(t, rd.Close()) }()
	assert.Equal(t, st.BytesOut, rd.Size())

	r, err := NewReader(rd)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()
	assert.Equal(t, frame.Lz4FrameFormat, r.Header().Format)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriter_DefaultsFollowTheDeviceKernel(t *testing.T) {
	testList := []struct {
		desc       string
		ct         codec.CompressionType
		wantFormat frame.Format
	}{
		{desc: "lz4 kernel emits the lz4 frame", ct: codec.Lz4Compression, wantFormat: frame.Lz4FrameFormat},
		{desc: "snappy kernel emits the framing format", ct: codec.SnappyCompression, wantFormat: frame.SnappyFramingFormat},
		{desc: "zstd kernel emits the native container", ct: codec.ZstdCompression, wantFormat: frame.NativeFormat},
	}

	for _, tc := range testList {
		t.Run(tc.desc, func(t *testing.T) {
			dev := device.NewSoftDevice(device.WithCompression(tc.ct))
			defer func() { require.NoError(t, dev.Close()) }()
			store := storage.NewInmemStorage()
			ctx := context.Background()

			sink, err := store.Create(ctx, "obj")
			require.NoError(t, err)
			w, err := NewWriter(dev, sink)
			require.NoError(t, err)
			_, err = w.Write(textPayload(t, 1000))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			rd, err := store.Open(ctx, "obj")
			require.NoError(t, err)
			defer func() { require.NoError(t, rd.Close()) }()
			r, err := NewReader(rd)
			require.NoError(t, err)
			defer func() { require.NoError(t, r.Close()) }()

			assert.Equal(t, tc.wantFormat, r.Header().Format)
			assert.Equal(t, tc.ct, r.Header().Compression)
		})
	}
}

func TestWriter_StreamsOpenWithReferenceDecoders(t *testing.T) {
	ctx := context.Background()
	payload := textPayload(t, testPayloadLen)

	t.Run("lz4 frame", func(t *testing.T) {
		dev := device.NewSoftDevice()
		defer func() { require.NoError(t, dev.Close()) }()
		store := storage.NewInmemStorage()

		sink, err := store.Create(ctx, "obj.lz4")
		require.NoError(t, err)
		require.NoError(t, CompressReader(dev, sink, bytes.NewReader(payload)))

		rd, err := store.Open(ctx, "obj.lz4")
		require.NoError(t, err)
		defer func() { require.NoError(t, rd.Close()) }()
		got, err := io.ReadAll(lz4.NewReader(rd))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("snappy framing", func(t *testing.T) {
		dev := device.NewSoftDevice(device.WithCompression(codec.SnappyCompression))
		defer func() { require.NoError(t, dev.Close()) }()
		store := storage.NewInmemStorage()

		sink, err := store.Create(ctx, "obj.sz")
		require.NoError(t, err)
		require.NoError(t, CompressReader(dev, sink, bytes.NewReader(payload)))

		rd, err := store.Open(ctx, "obj.sz")
		require.NoError(t, err)
		defer func() { require.NoError(t, rd.Close()) }()
		got, err := io.ReadAll(snappy.NewReader(rd))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})
}

func TestWriter_AbortDiscardsTheObject(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()
	store := storage.NewInmemStorage()
	ctx := context.Background()

	sink, err := store.Create(ctx, "doomed")
	require.NoError(t, err)
	w, err := NewWriter(dev, sink)
	require.NoError(t, err)
	_, err = w.Write(textPayload(t, testPayloadLen))
	require.NoError(t, err)

	w.Abort()

	_, err = store.Open(ctx, "doomed")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestWriter_DeviceFaultAbortsTheSink(t *testing.T) {
	dev := device.NewSoftDevice(device.WithFaultHook(func(jobSeq int) error {
		return assert.AnError
	}))
	defer func() { require.NoError(t, dev.Close()) }()
	store := storage.NewInmemStorage()
	ctx := context.Background()

	sink, err := store.Create(ctx, "broken")
	require.NoError(t, err)
	w, err := NewWriter(dev, sink)
	require.NoError(t, err)

	// The dispatch is asynchronous; the fault surfaces on the wait
	// inside Close at the latest.
	_, writeErr := w.Write(textPayload(t, common.DefaultBlockSize*common.DefaultBlocksPerBrick))
	closeErr := w.Close()
	if writeErr == nil {
		require.ErrorIs(t, closeErr, common.DeviceFaultError)
	}

	// The partial object never became visible.
	_, err = store.Open(ctx, "broken")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriter_SinkWriteFailureAbortsTheObject(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()

	// Create mockery-generated mock
	sink := storageMocks.NewWritable(t)

	// Setup mock expectations: every write fails, the run must fall
	// back to Abort and never reach Finish.
	sink.On("Write", mock.Anything).Return(0, assert.AnError)
	sink.On("Abort").Return()

	w, err := NewWriter(dev, sink)
	require.NoError(t, err)

	// The header is written lazily on the first reclaim, so staging a
	// single brick never touches the sink before Close.
	_, err = w.Write(textPayload(t, common.DefaultBlockSize*common.DefaultBlocksPerBrick))
	require.NoError(t, err)
	require.ErrorIs(t, w.Close(), assert.AnError)
}

func TestWriter_CancelledRunAbortsTheSink(t *testing.T) {
	dev := device.NewSoftDevice(device.WithKernelLatency(20 * time.Millisecond))
	defer func() { require.NoError(t, dev.Close()) }()
	store := storage.NewInmemStorage()
	ctx, cancel := context.WithCancel(context.Background())

	sink, err := store.Create(ctx, "cancelled")
	require.NoError(t, err)
	w, err := NewWriter(dev, sink, WithContext(ctx))
	require.NoError(t, err)
	_, err = w.Write(textPayload(t, common.DefaultBlockSize*common.DefaultBlocksPerBrick))
	require.NoError(t, err)

	cancel()
	require.ErrorIs(t, w.Close(), context.Canceled)

	_, err = store.Open(context.Background(), "cancelled")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriter_UseAfterClose(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()
	store := storage.NewInmemStorage()

	sink, err := store.Create(context.Background(), "obj")
	require.NoError(t, err)
	w, err := NewWriter(dev, sink)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")
	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, common.InvalidConfigError)
}

func TestNewWriter_Validation(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()
	store := storage.NewInmemStorage()

	testList := []struct {
		desc string
		opts []Opt
	}{
		{desc: "block size outside the lz4 frame set", opts: []Opt{WithBlockSize(100)}},
		{desc: "algorithm differs from the device kernel", opts: []Opt{WithAlgorithm(codec.ZstdCompression)}},
		{desc: "zero blocks per brick", opts: []Opt{WithBlocksPerBrick(0)}},
		{desc: "container cannot carry the codec", opts: []Opt{WithFormat(frame.SnappyFramingFormat)}},
	}

	for _, tc := range testList {
		t.Run(tc.desc, func(t *testing.T) {
			sink, err := store.Create(context.Background(), "obj-"+tc.desc)
			require.NoError(t, err)
			defer sink.Abort()

			w, err := NewWriter(dev, sink, tc.opts...)
			require.ErrorIs(t, err, common.InvalidConfigError)
			assert.Nil(t, w)
		})
	}
}
