package relchan

import (
	"sync"
	"sync/atomic"
)

// Buffer is an opaque handle to packet memory. The channel owns a Buffer
// from Allocate until it hands it back through Release, exactly once.
// The zero Buffer means "no buffer".
type Buffer struct {
	Handle uint64
	Data   []byte
}

func (b Buffer) IsEmpty() bool {
	return b.Data == nil
}

// Allocator hands out and takes back packet buffers. Allocate must return
// at least size bytes.
type Allocator interface {
	Allocate(size int) Buffer
	Release(Buffer)
}

// HeapAllocator allocates fresh slices and leaves reclamation to the GC.
type HeapAllocator struct{}

func (HeapAllocator) Allocate(size int) Buffer {
	return Buffer{Data: make([]byte, size)}
}

func (HeapAllocator) Release(Buffer) {}

// PoolAllocator recycles buffers through two sync.Pool size classes: one
// for full outer packets and one for meta packets. Requests above the
// packet class are served from the heap and not recycled.
type PoolAllocator struct {
	packetSize int
	packets    sync.Pool
	metas      sync.Pool
	handles    atomic.Uint64
}

func NewPoolAllocator(packetSize int) *PoolAllocator {
	a := &PoolAllocator{packetSize: packetSize}
	a.packets.New = func() interface{} {
		b := make([]byte, packetSize)
		return &b
	}
	a.metas.New = func() interface{} {
		b := make([]byte, metaPacketSize)
		return &b
	}
	return a
}

func (a *PoolAllocator) Allocate(size int) Buffer {
	handle := a.handles.Add(1)
	switch {
	case size <= metaPacketSize:
		b := a.metas.Get().(*[]byte)
		return Buffer{Handle: handle, Data: (*b)[:size]}
	case size <= a.packetSize:
		b := a.packets.Get().(*[]byte)
		return Buffer{Handle: handle, Data: (*b)[:size]}
	default:
		return Buffer{Handle: handle, Data: make([]byte, size)}
	}
}

func (a *PoolAllocator) Release(buf Buffer) {
	if buf.IsEmpty() {
		return
	}
	b := buf.Data[:cap(buf.Data)]
	switch cap(b) {
	case metaPacketSize:
		a.metas.Put(&b)
	case a.packetSize:
		a.packets.Put(&b)
	}
}
