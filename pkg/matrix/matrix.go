// Package matrix models the emulated keyboard's physical switch matrix:
// 8 rows of 8 switches, one bit per switch.
package matrix

import "sync/atomic"

const Rows = 8

// Table is the matrix state table. The keyboard task is the only writer,
// so read-modify-write cycles need no compare-and-swap; any other task
// may load rows at any time. Rows are independent atomic values, meaning
// a concurrent reader can observe a mid-update table for at most one
// row; the original hardware gave no stronger guarantee either.
type Table struct {
	rows [Rows]atomic.Uint32
}

// Set marks a cell down. Cell addressing is row in bits 5-3, column in
// bits 2-0.
func (t *Table) Set(cell uint8) {
	t.write(cell, true)
}

// Clear marks a cell up.
func (t *Table) Clear(cell uint8) {
	t.write(cell, false)
}

func (t *Table) write(cell uint8, down bool) {
	row := &t.rows[(cell>>3)&(Rows-1)]
	bit := uint32(1) << (cell & 7)
	v := row.Load()
	if down {
		v |= bit
	} else {
		v &^= bit
	}
	row.Store(v)
}

// Toggle flips one cell, the latching switch behavior.
func (t *Table) Toggle(cell uint8) {
	row := &t.rows[(cell>>3)&(Rows-1)]
	row.Store(row.Load() ^ uint32(1)<<(cell&7))
}

// Get reports one cell.
func (t *Table) Get(cell uint8) bool {
	return t.rows[(cell>>3)&(Rows-1)].Load()&(uint32(1)<<(cell&7)) != 0
}

// Row returns one row with column 0 in bit 0. This is the load the
// bus-access task performs.
func (t *Table) Row(r int) byte {
	return byte(t.rows[r&(Rows-1)].Load())
}

// Snapshot copies all rows. Rows are loaded independently, so the result
// is not a point-in-time image of the whole table.
func (t *Table) Snapshot() [Rows]byte {
	var s [Rows]byte
	for i := range t.rows {
		s[i] = byte(t.rows[i].Load())
	}
	return s
}

// Reset clears every row.
func (t *Table) Reset() {
	for i := range t.rows {
		t.rows[i].Store(0)
	}
}
