// Package settings defines the driver's start-time configuration
// surface. The struct is fixed-size for zero-allocation binary
// serialization to flash and over the control channel.
package settings

import (
	"encoding/binary"
	"errors"
)

// CurrentVersion is the settings format version.
// Bump this when making breaking changes to the format.
// When firmware boots and finds a different version in flash, settings are wiped.
const CurrentVersion uint16 = 1

// Size is the serialized size in bytes.
const Size = 8

// Lock cell indices, used for the flag bits and everywhere the three
// locks are handled as an array.
const (
	LockScroll = iota
	LockCaps
	LockNum
	LockCount
)

// Flag bits. Bits 0-2 are the initial latch values in lock index order,
// bits 3-5 the toggle permissions, bit 6 removes Shift's say over
// alphabetic case.
const (
	FlagScrollLockOn uint16 = 1 << iota
	FlagCapsLockOn
	FlagNumLockOn
	FlagScrollLockToggle
	FlagCapsLockToggle
	FlagNumLockToggle
	FlagNoShiftCase
)

// Typematic delay steps.
const (
	Delay250 uint8 = iota
	Delay500
	Delay750
	Delay1000
)

// Settings is the whole configuration surface.
// Total size: 8 bytes
// Layout:
//
//	[0-1]: Version (uint16)
//	[2-3]: Flags (uint16)
//	[4]:   Delay (uint8, 0-3)
//	[5]:   Rate (uint8, 0-31, device encoding)
//	[6-7]: Reserved
type Settings struct {
	Version  uint16
	Flags    uint16
	Delay    uint8 // auto-repeat delay step, 250 ms per step above 250 ms
	Rate     uint8 // auto-repeat rate in the device's 0x00-0x1F encoding
	Reserved uint16
}

var (
	ErrInvalidSize  = errors.New("invalid settings size")
	ErrInvalidValue = errors.New("invalid settings value")
)

// rateTenths holds the device rate table in tenths of characters per
// second: 0x00 is the fastest (30.0 cps), 0x1F the slowest (2.0 cps).
var rateTenths = [32]uint16{
	300, 267, 240, 218, 207, 185, 171, 160,
	150, 133, 120, 109, 100, 92, 86, 80,
	75, 67, 60, 55, 50, 46, 43, 40,
	37, 33, 30, 27, 25, 23, 21, 20,
}

// Default returns the settings the driver ships with: shift-lock engaged
// and the keypad numeric, the way the emulated machine expects to boot,
// all locks toggleable, 500 ms delay, 10.9 cps repeat.
func Default() Settings {
	return Settings{
		Version: CurrentVersion,
		Flags: FlagCapsLockOn | FlagNumLockOn |
			FlagScrollLockToggle | FlagCapsLockToggle | FlagNumLockToggle,
		Delay: Delay500,
		Rate:  0x0B,
	}
}

// Validate checks field ranges; the version is checked by storage and
// the control channel, not here.
func (s *Settings) Validate() error {
	if s.Delay > Delay1000 {
		return ErrInvalidValue
	}
	if s.Rate > 0x1F {
		return ErrInvalidValue
	}
	return nil
}

// LockInitial reports the configured initial latch value of one lock.
func (s *Settings) LockInitial(lock int) bool {
	return s.Flags&(1<<lock) != 0
}

// SetLockInitial sets the configured initial latch value of one lock.
func (s *Settings) SetLockInitial(lock int, on bool) {
	s.setFlag(1<<lock, on)
}

// LockToggleAllowed reports whether key presses may flip one lock.
func (s *Settings) LockToggleAllowed(lock int) bool {
	return s.Flags&(1<<(LockCount+lock)) != 0
}

// SetLockToggleAllowed sets the toggle permission of one lock.
func (s *Settings) SetLockToggleAllowed(lock int, on bool) {
	s.setFlag(1<<(LockCount+lock), on)
}

// NoShiftCase reports whether alphabetic case comes from the Caps latch
// alone, ignoring live Shift.
func (s *Settings) NoShiftCase() bool {
	return s.Flags&FlagNoShiftCase != 0
}

// SetNoShiftCase sets the case authority flag.
func (s *Settings) SetNoShiftCase(on bool) {
	s.setFlag(FlagNoShiftCase, on)
}

func (s *Settings) setFlag(bit uint16, on bool) {
	if on {
		s.Flags |= bit
	} else {
		s.Flags &^= bit
	}
}

// Typematic encodes Rate and Delay into the argument byte of the
// device's set-typematic command: rate in bits 0-4, delay in bits 5-6.
func (s *Settings) Typematic() byte {
	return s.Rate&0x1F | s.Delay<<5
}

// DelayMillis returns the delay step in milliseconds.
func (s *Settings) DelayMillis() uint16 {
	return 250 * (uint16(s.Delay) + 1)
}

// DelayForMillis converts a millisecond value to a delay step.
func DelayForMillis(ms int) (uint8, bool) {
	if ms < 250 || ms > 1000 || ms%250 != 0 {
		return 0, false
	}
	return uint8(ms/250 - 1), true
}

// RateTenths returns the repeat rate for a device rate code in tenths
// of characters per second.
func RateTenths(rate uint8) uint16 {
	return rateTenths[rate&0x1F]
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Settings) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint16(buf[0:], s.Version)
	binary.LittleEndian.PutUint16(buf[2:], s.Flags)
	buf[4] = s.Delay
	buf[5] = s.Rate
	binary.LittleEndian.PutUint16(buf[6:], s.Reserved)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Settings) UnmarshalBinary(data []byte) error {
	if len(data) < Size {
		return ErrInvalidSize
	}

	s.Version = binary.LittleEndian.Uint16(data[0:])
	s.Flags = binary.LittleEndian.Uint16(data[2:])
	s.Delay = data[4]
	s.Rate = data[5]
	s.Reserved = binary.LittleEndian.Uint16(data[6:])
	return nil
}
