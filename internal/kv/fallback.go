package kv

import (
	"context"
	"sync"

	"github.com/clinicedge/clinicedge/internal/logging"
)

// Fallback serves from a durable slot until the first read or write failure,
// then routes every subsequent operation to an in-memory slot for the rest of
// the process lifetime. Degradation is sticky and one-way: the durable slot
// is not retried once abandoned, so no data written after the switch survives
// a restart. Callers that care can inspect Status.
type Fallback struct {
	durable Slot
	memory  *MemorySlot
	log     logging.Logger

	mu       sync.Mutex
	degraded bool
}

func NewFallback(durable Slot, log logging.Logger) *Fallback {
	if log == nil {
		log = logging.Nop()
	}
	return &Fallback{
		durable: durable,
		memory:  NewMemorySlot(),
		log:     log,
	}
}

// Status reports whether the slot is still durable or has degraded to memory.
func (f *Fallback) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return StatusDegraded
	}
	return StatusDurable
}

func (f *Fallback) degrade(ctx context.Context, op string, err error) {
	f.mu.Lock()
	already := f.degraded
	f.degraded = true
	f.mu.Unlock()

	if !already {
		f.log.Warn(ctx, "durable slot failed, switching to in-memory storage", "op", op, "error", err)
	}
}

func (f *Fallback) active() Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.memory
	}
	return f.durable
}

func (f *Fallback) Get(ctx context.Context, key string) (string, bool, error) {
	slot := f.active()
	v, ok, err := slot.Get(ctx, key)
	if err != nil && slot != f.memory {
		f.degrade(ctx, "get", err)
		return f.memory.Get(ctx, key)
	}
	return v, ok, err
}

func (f *Fallback) Set(ctx context.Context, key, value string) error {
	slot := f.active()
	err := slot.Set(ctx, key, value)
	if err != nil && slot != f.memory {
		f.degrade(ctx, "set", err)
		return f.memory.Set(ctx, key, value)
	}
	return err
}

func (f *Fallback) Delete(ctx context.Context, key string) error {
	slot := f.active()
	err := slot.Delete(ctx, key)
	if err != nil && slot != f.memory {
		f.degrade(ctx, "delete", err)
		return f.memory.Delete(ctx, key)
	}
	return err
}

func (f *Fallback) Close() error { return f.durable.Close() }
