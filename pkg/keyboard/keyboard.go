// Package keyboard runs the PS/2 keyboard task: it owns the link port,
// decodes the scan code stream, maintains the emulated switch matrix and
// the key event buffer, and exposes the polling API the rest of the
// firmware uses.
//
// Shared-state contract: the matrix rows (via StateTable), the presence
// flag, the lock latches and the modifier register are written only by
// the keyboard task and may be read by any other task at any time
// without coordination. The buffer's head index is written only by the
// task, its tail index only by the polling client. None of the readers
// ever blocks the task and the task never blocks on a reader.
package keyboard

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/Crudus/L-Star/pkg/keymap"
	"github.com/Crudus/L-Star/pkg/matrix"
	"github.com/Crudus/L-Star/pkg/ps2"
	"github.com/Crudus/L-Star/pkg/settings"
)

// ErrRunning is returned by Start when the single execution slot is
// taken.
var ErrRunning = errors.New("keyboard: driver already started")

// getKeyPollInterval paces the cooperative wait in GetKey.
const getKeyPollInterval = time.Millisecond

// Driver owns the keyboard task and all the state it publishes. The
// configuration surface is fixed for the lifetime of the driver; only
// the lock latches move after Start.
type Driver struct {
	buf     eventBuffer
	present atomic.Bool
	table   matrix.Table
	locks   atomic.Uint32 // latched lock values, settings lock order
	mods    atomic.Uint32 // keymap.Modifiers

	cfg settings.Settings

	running atomic.Bool
	stop    atomic.Bool
	done    chan struct{}

	// task-private decode state
	port     *ps2.Port
	decoder  keymap.Decoder
	lockHeld [settings.LockCount]bool
}

// New prepares a stopped driver. The lock latches read their configured
// initial values even before Start.
func New(cfg settings.Settings) *Driver {
	d := &Driver{cfg: cfg}
	d.seedLocks()
	return d
}

// Start wires the signal lines and spawns the keyboard task. There is a
// single execution slot; starting a started driver fails.
func (d *Driver) Start(clock, data ps2.Line) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	d.stop.Store(false)
	d.seedLocks()
	d.port = ps2.NewPort(clock, data, d.stopping)
	d.done = make(chan struct{})
	go d.run()

	return nil
}

// Stop halts the task and zeroes all shared state. An in-flight exchange
// with the device is abandoned, not completed.
func (d *Driver) Stop() {
	if !d.running.Load() {
		return
	}

	d.stop.Store(true)
	<-d.done

	d.present.Store(false)
	d.table.Reset()
	d.buf.reset()
	d.mods.Store(0)
	d.decoder.Reset()
	d.running.Store(false)
}

// Present reports whether handshake and configuration have completed
// since start. It drops back to false while the task recovers from a
// link fault.
func (d *Driver) Present() bool {
	return d.present.Load()
}

// Key returns the oldest buffered composite code without blocking, or 0
// when the buffer is empty.
func (d *Driver) Key() keymap.Code {
	return d.buf.pop()
}

// GetKey polls cooperatively until a key arrives. It returns 0 only if
// the driver is stopped while waiting.
func (d *Driver) GetKey() keymap.Code {
	for {
		if code := d.buf.pop(); code != 0 {
			return code
		}
		if !d.running.Load() || d.stop.Load() {
			return 0
		}
		time.Sleep(getKeyPollInterval)
	}
}

// NewKey discards anything already buffered, then waits like GetKey.
func (d *Driver) NewKey() keymap.Code {
	d.buf.clear()
	return d.GetKey()
}

// GotKey reports whether a key is waiting.
func (d *Driver) GotKey() bool {
	return d.buf.pending()
}

// ClearKeys discards all buffered entries without reading them.
func (d *Driver) ClearKeys() {
	d.buf.clear()
}

// KeyState reads the matrix bit for one identifier. Identifiers without
// a matrix cell read false.
func (d *Driver) KeyState(id byte) bool {
	cell, ok := keymap.Cell(id)
	if !ok {
		return false
	}
	return d.table.Get(cell)
}

// StateTable exposes the live matrix table. This is the handle the
// bus-access task reads through; see the package contract.
func (d *Driver) StateTable() *matrix.Table {
	return &d.table
}

// Locks returns the three latched lock values.
func (d *Driver) Locks() (scroll, caps, num bool) {
	bits := d.locks.Load()
	return bits&(1<<settings.LockScroll) != 0,
		bits&(1<<settings.LockCaps) != 0,
		bits&(1<<settings.LockNum) != 0
}

// Modifiers returns the live modifier pair register.
func (d *Driver) Modifiers() keymap.Modifiers {
	return keymap.Modifiers(d.mods.Load())
}

// Settings returns the configuration surface the driver was started
// with.
func (d *Driver) Settings() settings.Settings {
	return d.cfg
}

func (d *Driver) stopping() bool {
	return d.stop.Load()
}

func (d *Driver) seedLocks() {
	var bits uint32
	for lock := 0; lock < settings.LockCount; lock++ {
		if d.cfg.LockInitial(lock) {
			bits |= 1 << lock
		}
	}
	d.locks.Store(bits)
}

func (d *Driver) lockOn(lock int) bool {
	return d.locks.Load()&(1<<lock) != 0
}

func (d *Driver) flipLock(lock int) {
	d.locks.Store(d.locks.Load() ^ 1<<lock)
}

func (d *Driver) setModifier(bit keymap.Modifiers, held bool) {
	mods := keymap.Modifiers(d.mods.Load())
	if held {
		mods |= bit
	} else {
		mods &^= bit
	}
	d.mods.Store(uint32(mods))
}
