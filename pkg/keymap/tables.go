package keymap

// scanLimit bounds the primary lookup; set 2 make codes end at 0x83 (F7).
const scanLimit = 0x84

// scanTable maps (extended, scan code) to a logical key identifier.
// Index 0 is the plain table, index 1 the 0xE0-extended one. Entries not
// listed decode to KeyNone: function keys, the `@ [ \ ] ^ _ `` cluster
// (their matrix folds are reserved) and vendor oddities all fall through.
var scanTable = [2][256]byte{
	0: {
		// letters
		0x1C: 'a', 0x32: 'b', 0x21: 'c', 0x23: 'd', 0x24: 'e',
		0x2B: 'f', 0x34: 'g', 0x33: 'h', 0x43: 'i', 0x3B: 'j',
		0x42: 'k', 0x4B: 'l', 0x3A: 'm', 0x31: 'n', 0x44: 'o',
		0x4D: 'p', 0x15: 'q', 0x2D: 'r', 0x1B: 's', 0x2C: 't',
		0x3C: 'u', 0x2A: 'v', 0x1D: 'w', 0x22: 'x', 0x35: 'y',
		0x1A: 'z',

		// digit row
		0x45: '0', 0x16: '1', 0x1E: '2', 0x26: '3', 0x25: '4',
		0x2E: '5', 0x36: '6', 0x3D: '7', 0x3E: '8', 0x46: '9',

		// punctuation
		0x29: ' ', 0x41: ',', 0x4E: '-', 0x49: '.', 0x4A: '/',
		0x4C: ';', 0x52: '\'', 0x55: '=',

		// control keys
		0x0D: KeyTab, 0x5A: KeyReturn, 0x66: KeyBackspace,
		0x76: KeyEscape,

		// modifiers and locks
		0x12: KeyLeftShift, 0x59: KeyRightShift, 0x14: KeyLeftCtrl,
		0x11: KeyLeftAlt, 0x58: KeyCapsLock, 0x77: KeyNumLock,
		0x7E: KeyScrollLock,

		// keypad
		0x70: keypad0, 0x69: keypad1, 0x72: keypad2, 0x7A: keypad3,
		0x6B: keypad4, 0x73: keypad5, 0x74: keypad6, 0x6C: keypad7,
		0x75: keypad8, 0x7D: keypad9, 0x71: keypadDot,
		0x79: keypadPlus, 0x7B: keypadMinus, 0x7C: keypadStar,
	},
	1: {
		// right-hand modifiers
		0x11: KeyRightAlt, 0x14: KeyRightCtrl, 0x1F: KeyLeftSuper,
		0x27: KeyRightSuper,

		// cursor and editing cluster
		0x6C: KeyHome, 0x69: KeyEnd, 0x75: KeyUp, 0x72: KeyDown,
		0x6B: KeyLeft, 0x74: KeyRight, 0x7D: KeyPageUp,
		0x7A: KeyPageDown, 0x70: KeyInsert, 0x71: KeyDelete,

		// keypad
		0x4A: keypadSlash, 0x5A: keypadEnter,
	},
}

// keypadNumeric and keypadNav give the keypad identifiers their Num Lock
// dependent meaning, indexed by id-keypad0. The operator keys and Enter
// read the same either way; keypad 5 has no navigation meaning.
var keypadNumeric = [16]byte{
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9',
	'.', '+', '-', '*', '/', KeyReturn,
}

var keypadNav = [16]byte{
	KeyInsert, KeyEnd, KeyDown, KeyPageDown, KeyLeft, KeyNone,
	KeyRight, KeyHome, KeyUp, KeyPageUp,
	KeyDelete, '+', '-', '*', '/', KeyReturn,
}

// Symbol-shift tables for the 1963-ASCII pairings of the emulated
// keyboard: , - . / carry < = > ? and the digit row carries
// ! " # $ % & ' ( ) with * on : and + on ;.
var shiftPunct = [4]byte{'<', '=', '>', '?'} // 0x2C-0x2F

var shiftDigits = [12]byte{ // 0x30-0x3B
	'0', '!', '"', '#', '$', '%', '&', '\'', '(', ')', '*', '+',
}
