package media

import (
	"sync"
)

// BufferUsage selects the transfer direction a host buffer is created for.
type BufferUsage int

const (
	WriteOnly BufferUsage = iota // upload to the device
	ReadOnly                     // download from the device
)

// GPUContext is the process-wide device context handle. The compositing core
// treats it as opaque: it is initialized once at startup and only the owning
// mixer goroutine issues operations on it.
type GPUContext struct {
	mu sync.Mutex
}

// HostBuffer is a host-visible, DMA-capable staging buffer. Only the
// ready/wait semantics affect pipeline latency; everything else is a plain
// mapped byte range in this CPU reference implementation.
//
// A read-only buffer cycles begin-read -> ready/wait -> map; a write-only
// buffer cycles map -> unmap -> bind.
type HostBuffer struct {
	usage  BufferUsage
	data   []byte
	bound  bool
	mapped bool

	mu    sync.Mutex
	ready chan struct{} // non-nil while an async readback is in flight
}

// NewHostBuffer allocates a buffer of the given byte size and usage.
func NewHostBuffer(size int, usage BufferUsage) *HostBuffer {
	return &HostBuffer{usage: usage, data: make([]byte, size)}
}

// Usage returns the transfer direction the buffer was created for.
func (b *HostBuffer) Usage() BufferUsage { return b.usage }

// Size returns the buffer capacity in bytes.
func (b *HostBuffer) Size() int { return len(b.data) }

// Bind scopes the buffer onto the device context.
func (b *HostBuffer) Bind(*GPUContext) { b.bound = true }

// Unbind releases the buffer from the device context.
func (b *HostBuffer) Unbind(*GPUContext) { b.bound = false }

// Map exposes the buffer memory. The returned slice stays valid until Unmap.
func (b *HostBuffer) Map() []byte {
	b.mapped = true
	return b.data
}

// Unmap invalidates the pointer returned by Map.
func (b *HostBuffer) Unmap() { b.mapped = false }

// BeginRead issues an asynchronous readback of w*h pixels in the given
// format. In this reference implementation the transfer completes
// immediately; the channel exists so Ready/Wait keep their contract.
func (b *HostBuffer) BeginRead(w, h int, pf PixelFormat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	b.ready = ch
	close(ch)
}

// Ready polls, without blocking, whether the last BeginRead has completed.
func (b *HostBuffer) Ready() bool {
	b.mu.Lock()
	ch := b.ready
	b.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Wait blocks on the given device context until the last BeginRead has
// completed. No timeout is imposed here; the driver governs it.
func (b *HostBuffer) Wait(ctx *GPUContext) {
	b.mu.Lock()
	ch := b.ready
	b.mu.Unlock()
	if ch == nil {
		return
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	<-ch
}
