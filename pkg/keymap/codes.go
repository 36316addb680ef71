// Package keymap turns PS/2 scan code set 2 bytes into the logical key
// identifiers of the emulated machine. Identifiers are ASCII where the
// key has an ASCII meaning, control characters for cursor and editing
// keys in the old terminal tradition, and reserved ranges for keypad,
// modifier and lock keys.
package keymap

// Control-range identifiers (0x01-0x1F plus DEL).
const (
	KeyNone      byte = 0x00
	KeyHome      byte = 0x01
	KeyEnd       byte = 0x05
	KeyBackspace byte = 0x08
	KeyLeft      byte = 0x08
	KeyTab       byte = 0x09
	KeyDown      byte = 0x0A
	KeyUp        byte = 0x0B
	KeyRight     byte = 0x0C
	KeyReturn    byte = 0x0D
	KeyPageUp    byte = 0x12
	KeyPageDown  byte = 0x14
	KeyInsert    byte = 0x16
	KeyEscape    byte = 0x1B
	KeyDelete    byte = 0x7F
)

// Keypad identifiers before the Num Lock remap. These never leave the
// decoder.
const (
	keypad0     byte = 0x80
	keypad1     byte = 0x81
	keypad2     byte = 0x82
	keypad3     byte = 0x83
	keypad4     byte = 0x84
	keypad5     byte = 0x85
	keypad6     byte = 0x86
	keypad7     byte = 0x87
	keypad8     byte = 0x88
	keypad9     byte = 0x89
	keypadDot   byte = 0x8A
	keypadPlus  byte = 0x8B
	keypadMinus byte = 0x8C
	keypadStar  byte = 0x8D
	keypadSlash byte = 0x8E
	keypadEnter byte = 0x8F
)

// Modifier and lock identifiers. Modifier order matches the Modifiers
// register bits.
const (
	KeyLeftShift  byte = 0xF0
	KeyRightShift byte = 0xF1
	KeyLeftCtrl   byte = 0xF2
	KeyRightCtrl  byte = 0xF3
	KeyLeftAlt    byte = 0xF4
	KeyRightAlt   byte = 0xF5
	KeyLeftSuper  byte = 0xF6
	KeyRightSuper byte = 0xF7
	KeyScrollLock byte = 0xF8
	KeyCapsLock   byte = 0xF9
	KeyNumLock    byte = 0xFA
)

// Reserved matrix cells driven from lock state rather than key events.
// Their fold preimages (the FS/GS/RS control codes and the \ ] ^ keys)
// are deliberately left unmapped so nothing else can reach these cells.
const (
	CellShiftLock  uint8 = 28
	CellNumLock    uint8 = 29
	CellScrollLock uint8 = 30
)

// Modifiers is the modifier pair register: one bit per physical key,
// set while held.
type Modifiers uint8

const (
	ModLeftShift Modifiers = 1 << iota
	ModRightShift
	ModLeftCtrl
	ModRightCtrl
	ModLeftAlt
	ModRightAlt
	ModLeftSuper
	ModRightSuper
)

func (m Modifiers) Shift() bool { return m&(ModLeftShift|ModRightShift) != 0 }
func (m Modifiers) Ctrl() bool  { return m&(ModLeftCtrl|ModRightCtrl) != 0 }
func (m Modifiers) Alt() bool   { return m&(ModLeftAlt|ModRightAlt) != 0 }
func (m Modifiers) Super() bool { return m&(ModLeftSuper|ModRightSuper) != 0 }

// ModifierBit returns the register bit for a modifier identifier.
// Only valid for identifiers in the modifier range.
func ModifierBit(id byte) Modifiers {
	return 1 << (id - KeyLeftShift)
}

// Code is a composite key code: the identifier in the low byte and the
// live modifier summary in bits 8-11.
type Code uint16

const (
	FlagShift Code = 1 << (8 + iota)
	FlagCtrl
	FlagAlt
	FlagSuper
)

// Compose builds the composite code stored in the key event buffer.
func Compose(id byte, m Modifiers) Code {
	c := Code(id)
	if m.Shift() {
		c |= FlagShift
	}
	if m.Ctrl() {
		c |= FlagCtrl
	}
	if m.Alt() {
		c |= FlagAlt
	}
	if m.Super() {
		c |= FlagSuper
	}
	return c
}

func (c Code) Key() byte   { return byte(c) }
func (c Code) Shift() bool { return c&FlagShift != 0 }
func (c Code) Ctrl() bool  { return c&FlagCtrl != 0 }
func (c Code) Alt() bool   { return c&FlagAlt != 0 }
func (c Code) Super() bool { return c&FlagSuper != 0 }

// IsModifier reports whether id is one of the eight modifier keys.
func IsModifier(id byte) bool {
	return id >= KeyLeftShift && id <= KeyRightSuper
}

// IsLock reports whether id is one of the three lock keys.
func IsLock(id byte) bool {
	return id >= KeyScrollLock && id <= KeyNumLock
}

func isKeypad(id byte) bool {
	return id >= keypad0 && id <= keypadEnter
}

// Cell maps an identifier to its matrix cell: row in bits 5-3, column in
// bits 2-0. Identifiers outside 0x01-0x7F occupy no cell.
func Cell(id byte) (uint8, bool) {
	if id == KeyNone || id > KeyDelete {
		return 0, false
	}
	return id & 0x3F, true
}
