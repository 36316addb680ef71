package keyboard

import (
	"sync/atomic"

	"github.com/Crudus/L-Star/pkg/keymap"
)

// BufferDepth is the key event buffer capacity.
const BufferDepth = 16

// eventBuffer is the key event buffer: a fixed ring indexed by
// free-running counters, so all sixteen slots hold entries with no
// sentinel slot wasted. The keyboard task owns head, the polling client
// owns tail; each side writes only its own index and reads both, which
// is what makes the buffer safe without a lock.
type eventBuffer struct {
	tail  atomic.Uint32
	head  atomic.Uint32
	slots [BufferDepth]atomic.Uint32
}

// push appends one composite code. A full buffer drops the code and
// leaves the stored entries untouched.
func (b *eventBuffer) push(code keymap.Code) bool {
	head := b.head.Load()
	if head-b.tail.Load() >= BufferDepth {
		return false
	}
	b.slots[head%BufferDepth].Store(uint32(code))
	b.head.Store(head + 1)
	return true
}

// pop removes and returns the oldest entry, 0 when empty.
func (b *eventBuffer) pop() keymap.Code {
	tail := b.tail.Load()
	if b.head.Load() == tail {
		return 0
	}
	code := keymap.Code(b.slots[tail%BufferDepth].Load())
	b.tail.Store(tail + 1)
	return code
}

// pending reports whether entries are waiting.
func (b *eventBuffer) pending() bool {
	return b.head.Load() != b.tail.Load()
}

// clear discards everything buffered without reading it. Only the tail
// moves, so the reading client may clear while the task is pushing.
func (b *eventBuffer) clear() {
	b.tail.Store(b.head.Load())
}

// reset zeroes indices and slots. Only valid once the writer task is
// known to be gone.
func (b *eventBuffer) reset() {
	b.head.Store(0)
	b.tail.Store(0)
	for i := range b.slots {
		b.slots[i].Store(0)
	}
}
