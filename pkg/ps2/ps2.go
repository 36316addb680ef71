// Package ps2 implements the host side of the PS/2 keyboard link: two
// open-drain signal lines, bit-banged 11-bit frames, and the command
// handshake. This is a port of the classic two-pin software driver used
// on retro keyboard adapters.
package ps2

import (
	"errors"
	"math/bits"
	"time"
)

// Line is one open-drain signal of the port. Drive it low or release it
// and let the external pull-up raise it; the level read by Get is the
// wired-AND of both ends.
type Line interface {
	Low()
	Release()
	Get() bool
}

// Keyboard commands and replies.
const (
	CmdReset        byte = 0xFF
	CmdSetLEDs      byte = 0xED
	CmdSetTypematic byte = 0xF3
	Ack             byte = 0xFA
	SelfTestPass    byte = 0xAA
)

// LED bit positions for the CmdSetLEDs argument.
const (
	LEDScrollLock byte = 1 << 0
	LEDNumLock    byte = 1 << 1
	LEDCapsLock   byte = 1 << 2
)

// Timing configuration. The device owns the clock at 10-16.7 kHz, so a
// bit edge that takes longer than bitTimeout means the exchange is dead.
const (
	settleTime   = 16 * time.Microsecond
	rtsClockHold = 128 * time.Microsecond
	bitTimeout   = 10 * time.Millisecond
	pollStep     = time.Microsecond
	idlePollStep = 25 * time.Microsecond
)

var (
	ErrTimeout   = errors.New("ps2: clock timeout")
	ErrParity    = errors.New("ps2: parity mismatch")
	ErrNoAck     = errors.New("ps2: command not acknowledged")
	ErrCancelled = errors.New("ps2: wait cancelled")
)

// Port is the host end of one keyboard link. It is not safe for
// concurrent use; exactly one task owns it.
type Port struct {
	clock  Line
	data   Line
	cancel func() bool
}

// NewPort releases both lines to idle and returns the port. cancel may be
// nil; when it reports true the unbounded idle wait in Receive gives up
// with ErrCancelled.
func NewPort(clock, data Line, cancel func() bool) *Port {
	clock.Release()
	data.Release()

	return &Port{
		clock:  clock,
		data:   data,
		cancel: cancel,
	}
}

// Transmit sends one command or argument byte and consumes the device's
// acknowledgment byte. Anything other than Ack fails the exchange.
func (p *Port) Transmit(b byte) error {
	if err := p.send(b); err != nil {
		return err
	}

	reply, err := p.Receive()
	if err != nil {
		return err
	}
	if reply != Ack {
		return ErrNoAck
	}

	return nil
}

// Receive waits for the device to clock in one frame and returns its data
// byte. The wait for the start edge is unbounded; once a frame has
// started every edge must arrive within bitTimeout. Odd parity is checked
// over the data and parity bits, the start and stop bits are consumed and
// discarded.
func (p *Port) Receive() (byte, error) {
	if err := p.waitStartEdge(); err != nil {
		return 0, err
	}

	time.Sleep(settleTime)
	_ = p.data.Get() // start bit

	var data byte
	ones := 0
	for i := 0; i < 8; i++ {
		bit, err := p.nextSample()
		if err != nil {
			return 0, err
		}
		if bit {
			data |= 1 << i
			ones++
		}
	}

	parity, err := p.nextSample()
	if err != nil {
		return 0, err
	}
	if parity {
		ones++
	}

	if _, err := p.nextSample(); err != nil { // stop bit
		return 0, err
	}

	if ones%2 == 0 {
		return 0, ErrParity
	}

	return data, nil
}

// send performs the request-to-send sequence and shifts out 8 data bits,
// odd parity and the stop bit on device-driven falling edges, then waits
// out the device's line acknowledgment.
func (p *Port) send(b byte) error {
	p.clock.Low()
	time.Sleep(rtsClockHold)
	p.data.Low()
	time.Sleep(settleTime)
	p.clock.Release()

	frame := uint16(b) | oddParity(b)<<8 | 1<<9
	for i := 0; i < 10; i++ {
		if err := p.waitLevel(p.clock, false); err != nil {
			p.data.Release()
			return err
		}
		if frame&1 != 0 {
			p.data.Release()
		} else {
			p.data.Low()
		}
		frame >>= 1
		if err := p.waitLevel(p.clock, true); err != nil {
			p.data.Release()
			return err
		}
	}

	if err := p.waitLevel(p.data, false); err != nil {
		return err
	}
	if err := p.waitLevel(p.clock, false); err != nil {
		return err
	}
	if err := p.waitLevel(p.data, true); err != nil {
		return err
	}
	return p.waitLevel(p.clock, true)
}

// waitStartEdge blocks until the clock has been seen high and then low
// again. Only this wait is unbounded, so only it polls cancel.
func (p *Port) waitStartEdge() error {
	for !p.clock.Get() {
		if p.cancelled() {
			return ErrCancelled
		}
		time.Sleep(idlePollStep)
	}
	for p.clock.Get() {
		if p.cancelled() {
			return ErrCancelled
		}
		time.Sleep(idlePollStep)
	}
	return nil
}

// nextSample waits for the next falling clock edge and samples the data
// line after the settle delay.
func (p *Port) nextSample() (bool, error) {
	if err := p.waitLevel(p.clock, true); err != nil {
		return false, err
	}
	if err := p.waitLevel(p.clock, false); err != nil {
		return false, err
	}
	time.Sleep(settleTime)
	return p.data.Get(), nil
}

func (p *Port) waitLevel(l Line, level bool) error {
	deadline := time.Now().Add(bitTimeout)
	for l.Get() != level {
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(pollStep)
	}
	return nil
}

func (p *Port) cancelled() bool {
	return p.cancel != nil && p.cancel()
}

// oddParity returns the parity bit that makes the ones count of b odd.
func oddParity(b byte) uint16 {
	if bits.OnesCount8(b)%2 == 0 {
		return 1
	}
	return 0
}
