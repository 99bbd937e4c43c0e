package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
)

const (
	// DefaultBankCount mirrors the four DDR banks of the cards this
	// device models.
	DefaultBankCount = 4
	// DefaultBankCapacity bounds each simulated bank, so allocation
	// failure behaves like it does on a real card.
	DefaultBankCapacity = 64 << 20

	defaultQueueDepth = 8
)

type bankState struct {
	capacity int
	used     int
}

// Stats are cumulative totals over the device lifetime.
type Stats struct {
	JobsCompleted    int64
	JobsFailed       int64
	BlocksCompressed int64
	BlocksRaw        int64
	BytesIn          int64
	BytesOut         int64
}

// SoftDevice executes the compression kernel in process, against the
// device copies of its buffers, through a single in-order dispatch
// queue. It exists so everything above the device contract can run and
// be tested without a card, including the failure modes.
type SoftDevice struct {
	compressor codec.ICompression
	latency    time.Duration
	faultHook  func(jobSeq int) error

	mu     sync.Mutex
	banks  map[Bank]*bankState
	closed bool
	jobSeq int

	ch chan *softJob
	wg sync.WaitGroup

	jobsCompleted    atomic.Int64
	jobsFailed       atomic.Int64
	blocksCompressed atomic.Int64
	blocksRaw        atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
}

type SoftOptFn func(d *SoftDevice)

// WithCompression selects the kernel's block codec. The default is lz4.
func WithCompression(ct codec.CompressionType) SoftOptFn {
	return func(d *SoftDevice) {
		d.compressor = codec.NewCompressor(ct)
	}
}

// WithKernelLatency adds a fixed delay to every dispatch, approximating
// the latency of a real card so overlap actually matters in benchmarks
// and examples.
func WithKernelLatency(latency time.Duration) SoftOptFn {
	return func(d *SoftDevice) {
		d.latency = latency
	}
}

// WithBanks reshapes the simulated memory: count banks of capacity
// bytes each.
func WithBanks(count, capacity int) SoftOptFn {
	return func(d *SoftDevice) {
		d.banks = make(map[Bank]*bankState, count)
		for i := 0; i < count; i++ {
			d.banks[Bank(i)] = &bankState{capacity: capacity}
		}
	}
}

// WithFaultHook installs a hook consulted before every dispatch,
// keyed by the 1-based job sequence number. A non-nil return fails the
// job the way a card fault would.
func WithFaultHook(fn func(jobSeq int) error) SoftOptFn {
	return func(d *SoftDevice) {
		d.faultHook = fn
	}
}

func NewSoftDevice(opts ...SoftOptFn) *SoftDevice {
	d := &SoftDevice{
		compressor: codec.NewCompressor(codec.Lz4Compression),
		ch:         make(chan *softJob, defaultQueueDepth),
	}
	WithBanks(DefaultBankCount, DefaultBankCapacity)(d)

	for _, o := range opts {
		o(d)
	}

	d.wg.Add(1)
	go d.drainJobs()
	return d
}

type softJob struct {
	job  Job
	seq  int
	err  error
	done chan struct{}
}

type softHandle struct {
	j *softJob
}

func (h *softHandle) Wait(ctx context.Context) error {
	select {
	case <-h.j.done:
		return h.j.err
	case <-ctx.Done():
		// The kernel cannot be preempted mid dispatch. Drain it before
		// surfacing the cancellation so no buffer stays device-owned.
		<-h.j.done
		return ctx.Err()
	}
}

func (d *SoftDevice) Compression() codec.CompressionType {
	return d.compressor.GetType()
}

func (d *SoftDevice) Alloc(size int, bank Bank) (IBuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: allocation of %d bytes", common.InvalidConfigError, size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: alloc", common.DeviceClosedError)
	}
	bs, ok := d.banks[bank]
	if !ok {
		return nil, fmt.Errorf("%w: bank %d does not exist", common.InvalidConfigError, bank)
	}
	if bs.used+size > bs.capacity {
		return nil, fmt.Errorf("%w: bank %d holds %d of %d bytes, cannot fit %d more",
			common.DeviceOutOfMemoryError, bank, bs.used, bs.capacity, size)
	}
	bs.used += size

	return &softBuffer{
		owner: d,
		bank:  bank,
		host:  make([]byte, size),
		dev:   make([]byte, size),
	}, nil
}

func (d *SoftDevice) Submit(job Job) (IHandle, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: submit", common.DeviceClosedError)
	}
	bufs, err := d.checkJobLocked(job)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	for _, b := range bufs {
		b.inFlight = true
	}
	d.jobSeq++
	j := &softJob{
		job:  job,
		seq:  d.jobSeq,
		done: make(chan struct{}),
	}
	d.mu.Unlock()

	d.ch <- j
	return &softHandle{j: j}, nil
}

// checkJobLocked rejects malformed dispatches before they reach the
// queue. Geometry that does not add up and reuse of an in-flight slot
// are both host bugs; failing the submit immediately keeps them from
// surfacing as corrupted output.
func (d *SoftDevice) checkJobLocked(job Job) ([4]*softBuffer, error) {
	var bufs [4]*softBuffer
	if job.BlockSize <= 0 || job.BlockCount <= 0 {
		return bufs, fmt.Errorf("%w: dispatch of %d blocks of %d bytes",
			common.InvalidConfigError, job.BlockCount, job.BlockSize)
	}
	if job.OutStride < d.compressor.CompressBound(job.BlockSize) {
		return bufs, fmt.Errorf("%w: output stride %d below the %s bound for %d byte blocks",
			common.InvalidConfigError, job.OutStride, d.compressor.GetType(), job.BlockSize)
	}

	for i, ib := range []IBuffer{job.In, job.Out, job.InSizes, job.OutSizes} {
		if ib == nil {
			return bufs, fmt.Errorf("%w: dispatch with a nil buffer", common.InvalidConfigError)
		}
		b, ok := ib.(*softBuffer)
		if !ok || b.owner != d {
			return bufs, fmt.Errorf("%w: buffer was not allocated on this device", common.InvalidConfigError)
		}
		if b.freed {
			return bufs, fmt.Errorf("%w: dispatch with a freed buffer", common.InvalidConfigError)
		}
		if b.inFlight {
			return bufs, fmt.Errorf("%w: resubmit before wait", common.SlotInFlightError)
		}
		bufs[i] = b
	}

	if bufs[0].Size() < job.BlockCount*job.BlockSize {
		return bufs, fmt.Errorf("%w: input buffer holds %d bytes, dispatch needs %d",
			common.InvalidConfigError, bufs[0].Size(), job.BlockCount*job.BlockSize)
	}
	if bufs[1].Size() < job.BlockCount*job.OutStride {
		return bufs, fmt.Errorf("%w: output buffer holds %d bytes, dispatch needs %d",
			common.InvalidConfigError, bufs[1].Size(), job.BlockCount*job.OutStride)
	}
	for _, sizes := range bufs[2:] {
		if sizes.Size() < job.BlockCount*SizeEntryLen {
			return bufs, fmt.Errorf("%w: size buffer holds %d entries, dispatch needs %d",
				common.InvalidConfigError, sizes.Size()/SizeEntryLen, job.BlockCount)
		}
	}
	return bufs, nil
}

func (d *SoftDevice) drainJobs() {
	defer d.wg.Done()
	for j := range d.ch {
		if d.latency > 0 {
			time.Sleep(d.latency)
		}
		j.err = d.execute(j)
		if j.err != nil {
			d.jobsFailed.Add(1)
			zap.L().Error("kernel dispatch failed",
				zap.Int("job", j.seq),
				zap.Error(j.err))
		} else {
			d.jobsCompleted.Add(1)
		}
		d.releaseJob(j.job)
		close(j.done)
	}
}

// execute runs the kernel against the device copies of the job's
// buffers. Host copies are never read, so data the host forgot to sync
// is simply not there.
func (d *SoftDevice) execute(j *softJob) error {
	if d.faultHook != nil {
		if err := d.faultHook(j.seq); err != nil {
			return fmt.Errorf("%w: %s", common.DeviceFaultError, err)
		}
	}

	in := j.job.In.(*softBuffer)
	out := j.job.Out.(*softBuffer)
	inSizes := j.job.InSizes.(*softBuffer)
	outSizes := j.job.OutSizes.(*softBuffer)

	for i := 0; i < j.job.BlockCount; i++ {
		inSize := int(SizeEntry(inSizes.dev, i))
		if inSize <= 0 || inSize > j.job.BlockSize {
			return fmt.Errorf("%w: block %d claims %d bytes, block size is %d",
				common.DeviceFaultError, i, inSize, j.job.BlockSize)
		}

		src := in.dev[i*j.job.BlockSize : i*j.job.BlockSize+inSize]
		dst := out.dev[i*j.job.OutStride : (i+1)*j.job.OutStride]
		n, err := d.compressor.Compress(dst, src)
		if err != nil {
			return err
		}
		PutSizeEntry(outSizes.dev, i, uint32(n))

		d.bytesIn.Add(int64(inSize))
		if n == 0 {
			d.blocksRaw.Add(1)
			d.bytesOut.Add(int64(inSize))
		} else {
			d.blocksCompressed.Add(1)
			d.bytesOut.Add(int64(n))
		}
	}

	// Size entries past the valid blocks read as zero afterwards, for
	// partial final dispatches on a reused slot.
	for i := j.job.BlockCount; i*SizeEntryLen < outSizes.Size(); i++ {
		PutSizeEntry(outSizes.dev, i, 0)
	}
	return nil
}

func (d *SoftDevice) releaseJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ib := range []IBuffer{job.In, job.Out, job.InSizes, job.OutSizes} {
		ib.(*softBuffer).inFlight = false
	}
}

func (d *SoftDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.ch)
	d.wg.Wait()
	return nil
}

// GetStats snapshots the device counters.
func (d *SoftDevice) GetStats() Stats {
	return Stats{
		JobsCompleted:    d.jobsCompleted.Load(),
		JobsFailed:       d.jobsFailed.Load(),
		BlocksCompressed: d.blocksCompressed.Load(),
		BlocksRaw:        d.blocksRaw.Load(),
		BytesIn:          d.bytesIn.Load(),
		BytesOut:         d.bytesOut.Load(),
	}
}

var _ IDevice = (*SoftDevice)(nil)
