package keyboard

import (
	"time"

	"github.com/Crudus/L-Star/pkg/keymap"
	"github.com/Crudus/L-Star/pkg/ps2"
	"github.com/Crudus/L-Star/pkg/settings"
)

// resetBackoff paces reset retries while no device answers.
const resetBackoff = 250 * time.Millisecond

// run is the keyboard task: a reset/handshake/configure cycle feeding
// the decode loop, repeated until Stop. Every link fault lands back
// here, which is the driver's only recovery path.
func (d *Driver) run() {
	defer close(d.done)

	for !d.stopping() {
		// RESET: drop shared state and command a device reset. The
		// buffer is deliberately kept; clients may still drain keys
		// typed before the fault.
		d.present.Store(false)
		d.table.Reset()
		d.mods.Store(0)
		d.decoder.Reset()
		for i := range d.lockHeld {
			d.lockHeld[i] = false
		}

		if err := d.port.Transmit(ps2.CmdReset); err != nil {
			d.backoff()
			continue
		}

		// AWAIT_HANDSHAKE: discard bytes until self-test pass
		if !d.awaitHandshake() {
			continue
		}

		// CONFIGURE, then RUNNING until the next fault
		if err := d.configure(); err != nil {
			continue
		}

		d.decodeLoop()
	}
}

// backoff waits out resetBackoff in small steps so Stop stays prompt.
func (d *Driver) backoff() {
	deadline := time.Now().Add(resetBackoff)
	for time.Now().Before(deadline) {
		if d.stopping() {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// awaitHandshake consumes bytes until the self-test pass announcement.
func (d *Driver) awaitHandshake() bool {
	for {
		b, err := d.port.Receive()
		if err != nil {
			return false
		}
		if b == ps2.SelfTestPass {
			return true
		}
	}
}

// configure pushes the typematic setting and the lock LEDs, folds the
// lock latches into their matrix report cells and raises presence. It
// doubles as the lightweight re-entry after a lock toggle, which is why
// it clears nothing.
func (d *Driver) configure() error {
	if err := d.port.Transmit(ps2.CmdSetTypematic); err != nil {
		return err
	}
	if err := d.port.Transmit(d.cfg.Typematic()); err != nil {
		return err
	}
	if err := d.port.Transmit(ps2.CmdSetLEDs); err != nil {
		return err
	}
	if err := d.port.Transmit(d.ledBits()); err != nil {
		return err
	}

	d.foldLock(settings.LockScroll, keymap.CellScrollLock)
	d.foldLock(settings.LockCaps, keymap.CellShiftLock)
	d.foldLock(settings.LockNum, keymap.CellNumLock)
	d.present.Store(true)

	return nil
}

func (d *Driver) ledBits() byte {
	var b byte
	if d.lockOn(settings.LockScroll) {
		b |= ps2.LEDScrollLock
	}
	if d.lockOn(settings.LockNum) {
		b |= ps2.LEDNumLock
	}
	if d.lockOn(settings.LockCaps) {
		b |= ps2.LEDCapsLock
	}
	return b
}

func (d *Driver) foldLock(lock int, cell uint8) {
	if d.lockOn(lock) {
		d.table.Set(cell)
	} else {
		d.table.Clear(cell)
	}
}

// decodeLoop is the RUNNING state. It returns on any link fault or an
// unsolicited self-test announcement, both of which demand a full
// reset.
func (d *Driver) decodeLoop() {
	for {
		b, err := d.port.Receive()
		if err != nil {
			return
		}

		kind, ev := d.decoder.Feed(b, d.context())
		switch kind {
		case keymap.KindSelfTest:
			return // the device rebooted behind our back
		case keymap.KindKey:
			if d.handleKey(ev) {
				// a lock flipped; push the new configuration
				// before decoding anything else
				if err := d.configure(); err != nil {
					return
				}
			}
		}
	}
}

func (d *Driver) context() keymap.Context {
	return keymap.Context{
		Shift:       d.Modifiers().Shift(),
		Caps:        d.lockOn(settings.LockCaps),
		Num:         d.lockOn(settings.LockNum),
		NoShiftCase: d.cfg.NoShiftCase(),
	}
}

// handleKey applies one decoded event to the shared state and reports
// whether it dirtied the device configuration.
func (d *Driver) handleKey(ev keymap.Event) bool {
	id := ev.Code

	if keymap.IsModifier(id) {
		d.setModifier(keymap.ModifierBit(id), !ev.Released)
		return false
	}

	if keymap.IsLock(id) {
		return d.handleLock(id, ev.Released)
	}

	if cell, ok := keymap.Cell(id); ok {
		if ev.Released {
			d.table.Clear(cell)
		} else {
			d.table.Set(cell)
		}
	}

	if ev.Released {
		return false
	}
	d.buf.push(keymap.Compose(id, d.Modifiers()))

	return false
}

// handleLock runs the latch logic. Toggles happen on clean press-edges
// only: typematic repeats of a held lock key arrive as further press
// events and must not re-toggle.
func (d *Driver) handleLock(id byte, released bool) bool {
	lock := int(id - keymap.KeyScrollLock)

	if released {
		d.lockHeld[lock] = false
		return false
	}
	if d.lockHeld[lock] {
		return false // auto-repeat
	}
	d.lockHeld[lock] = true

	if id == keymap.KeyCapsLock {
		// the emulated machine has a latching switch at this
		// position; it moves on every press, permissions or not
		d.table.Toggle(keymap.CellShiftLock)
	}

	if !d.cfg.LockToggleAllowed(lock) {
		return false
	}
	d.flipLock(lock)

	return true
}
