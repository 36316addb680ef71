//go:build tinygo

package ps2

import "machine"

// Pin adapts one machine.Pin to a Line. The pin floats with the pull-up
// enabled until Low reconfigures it as a driven output, which is how an
// open-drain bus is faked on push-pull GPIO hardware.
type Pin struct {
	pin machine.Pin
}

func NewPin(p machine.Pin) *Pin {
	l := &Pin{pin: p}
	l.Release()
	return l
}

func (l *Pin) Low() {
	l.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	l.pin.Low()
}

func (l *Pin) Release() {
	l.pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func (l *Pin) Get() bool {
	return l.pin.Get()
}
