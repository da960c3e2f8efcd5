package memory

import (
	"sync"

	"github.com/evanphx/mosk/abi"
	"github.com/pkg/errors"
)

// Frame is the index of a physical page.
type Frame uint32

// Address returns the physical address of the start of the frame.
func (f Frame) Address() uint32 {
	return uint32(f) << abi.PGSHIFT
}

func FrameFromAddress(pa uint32) Frame {
	return Frame(pa >> abi.PGSHIFT)
}

var (
	ErrNoFreeFrames = errors.New("no free physical frames")
	ErrFrameInUse   = errors.New("frame still referenced")
)

type frameInfo struct {
	refs int
	free bool
	data []byte
}

// FrameAllocator hands out zero filled physical frames and tracks how many
// mappings reference each one. A frame whose reference count drops to zero
// returns to the free list.
type FrameAllocator struct {
	mu sync.Mutex

	frames []frameInfo
	free   []Frame
}

func NewFrameAllocator(n int) *FrameAllocator {
	fa := &FrameAllocator{
		frames: make([]frameInfo, n),
		free:   make([]Frame, 0, n),
	}

	// Push in reverse so the lowest frame is handed out first.
	for i := n - 1; i >= 0; i-- {
		fa.frames[i].free = true
		fa.free = append(fa.free, Frame(i))
	}

	return fa
}

// Alloc removes a frame from the free list and zeroes it. The returned frame
// has a reference count of zero; it is the caller's job to either insert it
// somewhere or hand it back with Free.
func (fa *FrameAllocator) Alloc() (Frame, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if len(fa.free) == 0 {
		return 0, ErrNoFreeFrames
	}

	f := fa.free[len(fa.free)-1]
	fa.free = fa.free[:len(fa.free)-1]

	fi := &fa.frames[f]
	fi.free = false
	fi.refs = 0

	if fi.data == nil {
		fi.data = make([]byte, abi.BY2PG)
	} else {
		for i := range fi.data {
			fi.data[i] = 0
		}
	}

	return f, nil
}

// Free returns an unreferenced frame to the allocator.
func (fa *FrameAllocator) Free(f Frame) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fi := &fa.frames[f]
	if fi.refs > 0 {
		return errors.Wrapf(ErrFrameInUse, "frame=%d refs=%d", f, fi.refs)
	}

	fa.release(f)
	return nil
}

func (fa *FrameAllocator) release(f Frame) {
	fi := &fa.frames[f]
	if fi.free {
		panic(errors.Errorf("double free of frame %d", f))
	}

	fi.free = true
	fa.free = append(fa.free, f)
}

func (fa *FrameAllocator) IncRef(f Frame) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fa.frames[f].refs++
}

// DecRef drops a reference and frees the frame once nothing refers to it.
func (fa *FrameAllocator) DecRef(f Frame) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fi := &fa.frames[f]
	fi.refs--
	if fi.refs <= 0 {
		fi.refs = 0
		fa.release(f)
	}
}

func (fa *FrameAllocator) Refs(f Frame) int {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return fa.frames[f].refs
}

// Bytes exposes the contents of a frame. The slice aliases the frame, it is
// only valid while the frame is allocated.
func (fa *FrameAllocator) Bytes(f Frame) []byte {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return fa.frames[f].data
}

func (fa *FrameAllocator) FreeCount() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return len(fa.free)
}

func (fa *FrameAllocator) Total() int {
	return len(fa.frames)
}
