package keymap

// Stream bytes with meaning outside the lookup tables.
const (
	scanSelfTest   byte = 0xAA
	prefixExtended byte = 0xE0
	prefixRelease  byte = 0xF0
)

// Kind classifies the outcome of feeding one byte to the decoder.
type Kind uint8

const (
	KindNone Kind = iota
	KindKey
	KindSelfTest
)

// Event is one decoded key transition.
type Event struct {
	Code     byte
	Released bool
}

// Context carries the controller state the secondary remaps depend on.
type Context struct {
	Shift       bool
	Caps        bool
	Num         bool
	NoShiftCase bool
}

// Decoder tracks the sticky prefix flags of the scan code stream. The
// zero value is ready to use.
type Decoder struct {
	extended bool
	released bool
}

// Reset drops any pending prefix state.
func (d *Decoder) Reset() {
	d.extended = false
	d.released = false
}

// Feed consumes one byte from the device. Prefix bytes return KindNone
// and leave their flag set for the next byte; a self-test announcement
// returns KindSelfTest; everything else resolves through the tables and
// remaps to either a key event or nothing.
func (d *Decoder) Feed(scan byte, ctx Context) (Kind, Event) {
	switch scan {
	case scanSelfTest:
		d.Reset()
		return KindSelfTest, Event{}
	case prefixExtended:
		d.extended = true
		return KindNone, Event{}
	case prefixRelease:
		d.released = true
		return KindNone, Event{}
	}

	if scan >= scanLimit {
		// command replies and multi-byte oddities such as Pause
		d.Reset()
		return KindNone, Event{}
	}

	tbl := 0
	if d.extended {
		tbl = 1
	}
	id := scanTable[tbl][scan]
	released := d.released
	d.Reset()

	if id == KeyNone {
		return KindNone, Event{}
	}
	id = remap(id, ctx)
	if id == KeyNone {
		return KindNone, Event{}
	}

	return KindKey, Event{Code: id, Released: released}
}

// remap applies the context-dependent stages in order: keypad meaning
// from the Num Lock latch, symbol shift over the two remap ranges, and
// alphabetic case from Shift exclusive-or the Caps latch (Caps alone
// when NoShiftCase pins case to the latch).
func remap(id byte, ctx Context) byte {
	if isKeypad(id) {
		if ctx.Num {
			id = keypadNumeric[id-keypad0]
		} else {
			id = keypadNav[id-keypad0]
		}
		if id == KeyNone {
			return KeyNone
		}
	}

	if ctx.Shift {
		switch {
		case id >= 0x2C && id <= 0x2F:
			id = shiftPunct[id-0x2C]
		case id >= 0x30 && id <= 0x3B:
			id = shiftDigits[id-0x30]
		}
	}

	if id >= 'a' && id <= 'z' {
		upper := ctx.Caps
		if !ctx.NoShiftCase {
			upper = ctx.Shift != ctx.Caps
		}
		if upper {
			id -= 'a' - 'A'
		}
	}

	return id
}
