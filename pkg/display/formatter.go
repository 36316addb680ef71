package display

import (
	"github.com/Crudus/L-Star/pkg/keymap"
)

// The status lines are plain strings so they can be rendered by any
// frontend and tested off-target.

// LinkLine renders the PS/2 link state.
func LinkLine(present bool) string {
	if present {
		return "PS/2 link up"
	}
	return "PS/2 link down"
}

// LockLine renders the lock latches as fixed-position letters, a dash
// standing in for an open lock.
func LockLine(scroll, caps, num bool) string {
	b := []byte("locks ---")
	if scroll {
		b[6] = 'S'
	}
	if caps {
		b[7] = 'C'
	}
	if num {
		b[8] = 'N'
	}
	return string(b)
}

// ModLine renders the held modifiers, left and right collapsed.
func ModLine(mods keymap.Modifiers) string {
	b := []byte("mods ----")
	if mods.Shift() {
		b[5] = 'S'
	}
	if mods.Ctrl() {
		b[6] = 'C'
	}
	if mods.Alt() {
		b[7] = 'A'
	}
	if mods.Super() {
		b[8] = 'U'
	}
	return string(b)
}

// truncate limits a string to maxLen characters, adding ".." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 2 {
		return s[:maxLen]
	}
	return s[:maxLen-2] + ".."
}
