package keyboard

import (
	"testing"

	"github.com/Crudus/L-Star/pkg/keymap"
)

func TestBufferFIFO(t *testing.T) {
	var b eventBuffer

	for _, c := range []byte{'a', 'b', 'c'} {
		if !b.push(keymap.Code(c)) {
			t.Fatalf("Push %q failed on a non-full buffer", c)
		}
	}

	for _, c := range []byte{'a', 'b', 'c'} {
		if got := b.pop(); got.Key() != c {
			t.Errorf("Pop: expected %q, got %q", c, got.Key())
		}
	}
	if got := b.pop(); got != 0 {
		t.Errorf("Empty pop: expected 0, got 0x%x", got)
	}
}

func TestBufferOverflow(t *testing.T) {
	var b eventBuffer

	for i := 0; i < BufferDepth; i++ {
		if !b.push(keymap.Code('A' + i)) {
			t.Fatalf("Push %d failed before the buffer was full", i)
		}
	}

	// the seventeenth entry is dropped, stored entries stay intact
	if b.push(keymap.Code('z')) {
		t.Error("Push into a full buffer reported success")
	}

	for i := 0; i < BufferDepth; i++ {
		expected := byte('A' + i)
		if got := b.pop(); got.Key() != expected {
			t.Errorf("Entry %d: expected %q, got %q", i, expected, got.Key())
		}
	}
	if b.pending() {
		t.Error("Buffer still pending after draining")
	}

	// indices must still line up for further use
	if !b.push(keymap.Code('q')) {
		t.Fatal("Push failed after drain")
	}
	if got := b.pop(); got.Key() != 'q' {
		t.Errorf("Expected 'q', got %q", got.Key())
	}
}

func TestBufferClear(t *testing.T) {
	var b eventBuffer

	b.push(keymap.Code('a'))
	b.push(keymap.Code('b'))
	b.clear()

	if b.pending() {
		t.Error("Buffer pending after clear")
	}
	if got := b.pop(); got != 0 {
		t.Errorf("Pop after clear: expected 0, got 0x%x", got)
	}

	b.push(keymap.Code('c'))
	if got := b.pop(); got.Key() != 'c' {
		t.Errorf("Expected 'c' after clear, got %q", got.Key())
	}
}

func TestBufferWrapAround(t *testing.T) {
	var b eventBuffer

	// run the free-running indices well past several ring laps
	next := byte(0)
	for round := 0; round < 10; round++ {
		for i := 0; i < 6; i++ {
			b.push(keymap.Code(0x20 + uint16(next)%0x5F))
			next++
		}
		for i := 0; i < 6; i++ {
			expected := byte(0x20 + (next-6+byte(i))%0x5F)
			if got := b.pop(); got.Key() != expected {
				t.Fatalf("Round %d entry %d: expected 0x%x, got 0x%x", round, i, expected, got.Key())
			}
		}
	}
}
