// Package serial runs the control channel over the USB CDC port: a
// line-oriented debug console and the binary PC protocol multiplexed on
// one stream. A frame sync byte in the first column selects frame mode,
// anything else accumulates into a console line.
package serial

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/Crudus/L-Star/pkg/keyboard"
	"github.com/Crudus/L-Star/pkg/keymap"
	"github.com/Crudus/L-Star/pkg/protocol"
	"github.com/Crudus/L-Star/pkg/settings"
	"github.com/Crudus/L-Star/pkg/storage"
)

// discoverLine lets a PC app probe for the device over a plain
// terminal.
const discoverLine = "areyoualstar?"

// frameTimeout bounds the wait for the remainder of a frame once its
// sync byte has arrived.
const frameTimeout = 250 * time.Millisecond

// Serialer is the subset of machine.Serialer the session needs, kept
// as a local interface so the console is testable off-target.
type Serialer interface {
	ReadByte() (byte, error)
	Write(data []byte) (n int, err error)
}

// Session multiplexes the console and the frame protocol over one
// serial stream. Console edits are staged in pending and hit flash only
// on an explicit save.
type Session struct {
	serial  Serialer
	driver  *keyboard.Driver
	storage *storage.Manager
	handler *protocol.Handler
	pending settings.Settings

	inIndex  int
	inBuffer [128]byte
}

// NewSession wires the control channel. storage may be nil when flash
// is unavailable; the console then runs without persistence.
func NewSession(serial Serialer, d *keyboard.Driver, sm *storage.Manager) *Session {
	s := &Session{
		serial:  serial,
		driver:  d,
		storage: sm,
		pending: d.Settings(),
	}
	if sm != nil {
		s.handler = protocol.NewHandler(d, sm)
	}
	return s
}

// Handle services the channel forever.
func (s *Session) Handle() {
	for {
		s.step()
	}
}

// step consumes at most one input byte.
func (s *Session) step() {
	b, err := s.serial.ReadByte()
	if err != nil {
		return
	}

	if s.inIndex == 0 && b == protocol.SyncByte {
		s.handleFrame()
		return
	}

	if line, ok := s.readLine(b); ok {
		s.handleLine(line)
	}
}

// readLine accumulates console bytes until a newline. An overlong line
// starts over.
func (s *Session) readLine(b byte) (string, bool) {
	if b == '\n' {
		n := s.inIndex
		s.inIndex = 0
		if n > 0 && s.inBuffer[n-1] == '\r' {
			n--
		}
		return string(s.inBuffer[:n]), true
	}

	if s.inIndex == len(s.inBuffer) {
		s.inIndex = 0
	}
	s.inBuffer[s.inIndex] = b
	s.inIndex++

	return "", false
}

// handleFrame reads the rest of a protocol frame and answers it.
func (s *Session) handleFrame() {
	frame, err := protocol.ReadFrameBody(frameReader{s.serial})
	if err != nil {
		status := uint8(protocol.StatusError)
		if err == protocol.ErrCRCMismatch {
			status = protocol.StatusCRCError
		}
		protocol.WriteResponse(s.serial, &protocol.Response{Status: status})
		return
	}

	if s.handler == nil {
		protocol.WriteResponse(s.serial, &protocol.Response{Status: protocol.StatusError})
		return
	}
	protocol.WriteResponse(s.serial, s.handler.Handle(frame))
}

func (s *Session) handleLine(line string) {
	if line == "" {
		return
	}
	if line == discoverLine {
		s.write(discoverLine + "yes")
		return
	}

	args, err := shlex.Split(line)
	if err != nil || len(args) == 0 {
		s.write("parse error")
		return
	}

	s.command(args)
}

func (s *Session) command(args []string) {
	switch args[0] {
	case "status":
		s.cmdStatus()
	case "matrix":
		s.cmdMatrix()
	case "keys":
		s.cmdKeys()
	case "clear":
		s.driver.ClearKeys()
		s.write("ok")
	case "set":
		s.cmdSet(args)
	case "rate":
		s.cmdRate(args)
	case "delay":
		s.cmdDelay(args)
	case "show":
		s.cmdShow()
	case "save":
		s.cmdSave()
	case "defaults":
		s.pending = settings.Default()
		s.write("ok")
	case "help":
		s.cmdHelp()
	default:
		s.write("unknown command, try help")
	}
}

func (s *Session) cmdStatus() {
	if s.driver.Present() {
		s.write("link: up")
	} else {
		s.write("link: down")
	}

	scroll, caps, num := s.driver.Locks()
	s.write("locks: scroll=" + onOff(scroll) + " caps=" + onOff(caps) + " num=" + onOff(num))
	s.write("mods: 0x" + hex2(byte(s.driver.Modifiers())))

	if s.storage == nil {
		s.write("flash: unavailable")
		return
	}
	stats := s.storage.GetStats()
	saved := "defaults"
	if stats.Saved {
		saved = "settings saved"
	}
	s.write("flash: " + strconv.FormatInt(stats.TotalSpace, 10) + " bytes, " + saved)
}

func (s *Session) cmdMatrix() {
	rows := s.driver.StateTable().Snapshot()
	for r, bits := range rows {
		s.write("row" + strconv.Itoa(r) + ": " + bits8(bits))
	}
}

// cmdKeys drains and prints the buffered keystrokes.
func (s *Session) cmdKeys() {
	printed := false
	for s.driver.GotKey() {
		code := s.driver.Key()
		if code == 0 {
			break
		}
		s.write("key: " + formatKey(code))
		printed = true
	}
	if !printed {
		s.write("empty")
	}
}

func (s *Session) cmdSet(args []string) {
	if len(args) != 3 {
		s.write("usage: set <scroll|caps|num>[-toggle]|noshiftcase <on|off>")
		return
	}
	on, ok := parseOnOff(args[2])
	if !ok {
		s.write("usage: set <scroll|caps|num>[-toggle]|noshiftcase <on|off>")
		return
	}

	name := args[1]
	if name == "noshiftcase" {
		s.pending.SetNoShiftCase(on)
		s.write("ok")
		return
	}

	toggle := strings.HasSuffix(name, "-toggle")
	lock, ok := lockByName(strings.TrimSuffix(name, "-toggle"))
	if !ok {
		s.write("unknown option " + name)
		return
	}

	if toggle {
		s.pending.SetLockToggleAllowed(lock, on)
	} else {
		s.pending.SetLockInitial(lock, on)
	}
	s.write("ok")
}

func (s *Session) cmdRate(args []string) {
	if len(args) != 2 {
		s.write("usage: rate <0-31>")
		return
	}
	rate, err := strconv.Atoi(args[1])
	if err != nil || rate < 0 || rate > 0x1F {
		s.write("usage: rate <0-31>")
		return
	}

	s.pending.Rate = uint8(rate)
	s.write("rate " + args[1] + " = " + cps(settings.RateTenths(uint8(rate))))
}

func (s *Session) cmdDelay(args []string) {
	if len(args) != 2 {
		s.write("usage: delay <250|500|750|1000>")
		return
	}
	ms, err := strconv.Atoi(args[1])
	if err != nil {
		s.write("usage: delay <250|500|750|1000>")
		return
	}
	step, ok := settings.DelayForMillis(ms)
	if !ok {
		s.write("usage: delay <250|500|750|1000>")
		return
	}

	s.pending.Delay = step
	s.write("ok")
}

// cmdShow prints the staged settings, which may differ from what the
// driver is running with until the next boot.
func (s *Session) cmdShow() {
	p := &s.pending
	s.write("locks: scroll=" + onOff(p.LockInitial(settings.LockScroll)) +
		" caps=" + onOff(p.LockInitial(settings.LockCaps)) +
		" num=" + onOff(p.LockInitial(settings.LockNum)))
	s.write("toggles: scroll=" + onOff(p.LockToggleAllowed(settings.LockScroll)) +
		" caps=" + onOff(p.LockToggleAllowed(settings.LockCaps)) +
		" num=" + onOff(p.LockToggleAllowed(settings.LockNum)))
	s.write("rate: " + strconv.Itoa(int(p.Rate)) + " = " + cps(settings.RateTenths(p.Rate)))
	s.write("delay: " + strconv.Itoa(int(p.DelayMillis())) + " ms")
	s.write("noshiftcase: " + onOff(p.NoShiftCase()))
}

func (s *Session) cmdSave() {
	if s.storage == nil {
		s.write("flash unavailable")
		return
	}
	if err := s.pending.Validate(); err != nil {
		s.write("invalid settings")
		return
	}
	if err := s.storage.Save(&s.pending); err != nil {
		s.write("save failed")
		return
	}
	s.write("saved, takes effect next boot")
}

func (s *Session) cmdHelp() {
	s.write("status matrix keys clear show save defaults")
	s.write("set <scroll|caps|num>[-toggle]|noshiftcase <on|off>")
	s.write("rate <0-31>  delay <250|500|750|1000>")
}

func (s *Session) write(out string) {
	s.serial.Write([]byte(out + "\n"))
}

// frameReader adapts the polled UART to io.Reader for the frame
// decoder. A stalled frame gives up after frameTimeout.
type frameReader struct {
	serial Serialer
}

func (r frameReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	deadline := time.Now().Add(frameTimeout)
	for {
		if b, err := r.serial.ReadByte(); err == nil {
			p[0] = b
			return 1, nil
		}
		if time.Now().After(deadline) {
			return 0, protocol.ErrInvalidFrame
		}
		time.Sleep(time.Millisecond)
	}
}

func lockByName(name string) (int, bool) {
	switch name {
	case "scroll":
		return settings.LockScroll, true
	case "caps":
		return settings.LockCaps, true
	case "num":
		return settings.LockNum, true
	}
	return 0, false
}

func parseOnOff(arg string) (bool, bool) {
	switch arg {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	return false, false
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// formatKey renders a composite code for the console.
func formatKey(code keymap.Code) string {
	var b strings.Builder
	b.WriteString("0x")
	b.WriteString(hex2(byte(uint16(code) >> 8)))
	b.WriteString(hex2(code.Key()))

	k := code.Key()
	if k >= 0x20 && k <= 0x7E {
		b.WriteString(" '")
		b.WriteByte(k)
		b.WriteString("'")
	}

	if code.Shift() {
		b.WriteString(" +shift")
	}
	if code.Ctrl() {
		b.WriteString(" +ctrl")
	}
	if code.Alt() {
		b.WriteString(" +alt")
	}
	if code.Super() {
		b.WriteString(" +super")
	}

	return b.String()
}

// cps renders a rate table entry like "10.9 cps".
func cps(tenths uint16) string {
	return strconv.Itoa(int(tenths/10)) + "." + strconv.Itoa(int(tenths%10)) + " cps"
}

const hexDigits = "0123456789abcdef"

func hex2(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0F]})
}

func bits8(b byte) string {
	var out [8]byte
	for i := 0; i < 8; i++ {
		if b&(1<<(7-i)) != 0 {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out[:])
}
