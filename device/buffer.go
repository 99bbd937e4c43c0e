package device

import (
	"fmt"

	"github.com/brickpress/brickpress/common"
)

// softBuffer models card memory as two plain slices. host is what
// Bytes exposes; dev is what the kernel reads and writes. Keeping the
// copies physically separate makes a forgotten sync show up as stale
// data instead of silently passing.
type softBuffer struct {
	owner *SoftDevice
	bank  Bank
	host  []byte
	dev   []byte

	// guarded by owner.mu
	inFlight bool
	freed    bool
}

func (b *softBuffer) Bytes() []byte {
	return b.host
}

func (b *softBuffer) Size() int {
	return len(b.host)
}

func (b *softBuffer) Bank() Bank {
	return b.bank
}

func (b *softBuffer) SyncToDevice() error {
	if err := b.syncable(); err != nil {
		return err
	}
	copy(b.dev, b.host)
	return nil
}

func (b *softBuffer) SyncFromDevice() error {
	if err := b.syncable(); err != nil {
		return err
	}
	copy(b.host, b.dev)
	return nil
}

func (b *softBuffer) syncable() error {
	b.owner.mu.Lock()
	defer b.owner.mu.Unlock()
	if b.freed {
		return fmt.Errorf("%w: sync of a freed buffer", common.SlotInFlightError)
	}
	if b.inFlight {
		return fmt.Errorf("%w: sync while the kernel owns the buffer", common.SlotInFlightError)
	}
	return nil
}

func (b *softBuffer) Free() error {
	b.owner.mu.Lock()
	defer b.owner.mu.Unlock()
	if b.freed {
		return nil
	}
	if b.inFlight {
		return fmt.Errorf("%w: free while the kernel owns the buffer", common.SlotInFlightError)
	}
	b.freed = true
	b.owner.banks[b.bank].used -= len(b.host)
	b.host = nil
	b.dev = nil
	return nil
}

var _ IBuffer = (*softBuffer)(nil)
