// Package protocol implements a binary serial protocol for PC app communication.
// The protocol is designed to be simple, efficient, and suitable for TinyGo.
//
// Frame format:
//
//	[SYNC:1][CMD:1][LEN:2][PAYLOAD:LEN][CRC:2]
//	- SYNC: 0xAA (frame start marker)
//	- CMD: Command byte
//	- LEN: Payload length (uint16, little-endian)
//	- PAYLOAD: Variable length data
//	- CRC: CRC16-CCITT of [CMD][LEN][PAYLOAD]
//
// Response format is identical, with a status byte in the CMD slot.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/Crudus/L-Star/pkg/keyboard"
	"github.com/Crudus/L-Star/pkg/settings"
	"github.com/Crudus/L-Star/pkg/storage"
)

// DeviceName answers a discovery probe.
const DeviceName = "l-star"

// Firmware version reported by CmdGetVersion.
const (
	FirmwareMajor = 1
	FirmwareMinor = 0
)

const (
	SyncByte = 0xAA

	// Command codes (PC → Device)
	CmdPing            = 0x01
	CmdStatus          = 0x02
	CmdGetMatrix       = 0x03
	CmdGetSettings     = 0x04
	CmdSetSettings     = 0x05
	CmdReadKey         = 0x06
	CmdGetStorageStats = 0x07
	CmdFactoryReset    = 0x08
	CmdGetVersion      = 0x10
	CmdDiscover        = 0x11

	// Response status codes (Device → PC)
	StatusOK              = 0x00
	StatusError           = 0x01
	StatusInvalidCmd      = 0x02
	StatusInvalidData     = 0x03
	StatusNotFound        = 0x04
	StatusNoSpace         = 0x05
	StatusVersionMismatch = 0x06
	StatusCRCError        = 0x07
)

// maxPayload bounds a frame; every defined command fits well under it.
const maxPayload = 64

var (
	ErrInvalidFrame = errors.New("invalid frame")
	ErrCRCMismatch  = errors.New("CRC mismatch")
)

// Handler processes protocol commands against the live driver and the
// settings store.
type Handler struct {
	driver  *keyboard.Driver
	storage *storage.Manager
}

// NewHandler creates a new protocol handler.
func NewHandler(d *keyboard.Driver, sm *storage.Manager) *Handler {
	return &Handler{
		driver:  d,
		storage: sm,
	}
}

// Frame represents a protocol frame.
type Frame struct {
	Cmd     uint8
	Payload []byte
}

// Response represents a protocol response.
type Response struct {
	Status  uint8
	Payload []byte
}

// ReadFrame reads and validates a frame from the reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	sync := make([]byte, 1)
	if _, err := io.ReadFull(r, sync); err != nil {
		return nil, err
	}
	if sync[0] != SyncByte {
		return nil, ErrInvalidFrame
	}

	return ReadFrameBody(r)
}

// ReadFrameBody reads a frame whose sync byte has already been
// consumed. The serial console uses this after dispatching on the first
// byte of a line.
func ReadFrameBody(r io.Reader) (*Frame, error) {
	// Read header (cmd + len)
	header := make([]byte, 3)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	cmd := header[0]
	length := binary.LittleEndian.Uint16(header[1:])

	if length > maxPayload {
		return nil, ErrInvalidFrame
	}

	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	crcBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, crcBytes); err != nil {
		return nil, err
	}
	receivedCRC := binary.LittleEndian.Uint16(crcBytes)

	calculatedCRC := calcCRC(append(header, payload...))
	if receivedCRC != calculatedCRC {
		return nil, ErrCRCMismatch
	}

	return &Frame{
		Cmd:     cmd,
		Payload: payload,
	}, nil
}

// WriteResponse writes a response frame to the writer.
func WriteResponse(w io.Writer, resp *Response) error {
	return writeRaw(w, resp.Status, resp.Payload)
}

// WriteFrame writes a request frame (for testing/PC side).
func WriteFrame(w io.Writer, frame *Frame) error {
	return writeRaw(w, frame.Cmd, frame.Payload)
}

func writeRaw(w io.Writer, kind uint8, payload []byte) error {
	payloadLen := uint16(len(payload))
	frameLen := 1 + 1 + 2 + int(payloadLen) + 2 // sync + kind + len + payload + crc

	buf := make([]byte, 0, frameLen)
	buf = append(buf, SyncByte, kind)

	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, payloadLen)
	buf = append(buf, lenBytes...)
	buf = append(buf, payload...)

	// CRC covers everything after the sync byte
	crc := calcCRC(buf[1:])
	crcBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBytes, crc)
	buf = append(buf, crcBytes...)

	_, err := w.Write(buf)
	return err
}

// Handle processes a command frame and returns a response.
func (h *Handler) Handle(frame *Frame) *Response {
	switch frame.Cmd {
	case CmdPing:
		return h.handlePing(frame.Payload)
	case CmdStatus:
		return h.handleStatus()
	case CmdGetMatrix:
		return h.handleGetMatrix()
	case CmdGetSettings:
		return h.handleGetSettings()
	case CmdSetSettings:
		return h.handleSetSettings(frame.Payload)
	case CmdReadKey:
		return h.handleReadKey()
	case CmdGetStorageStats:
		return h.handleGetStorageStats()
	case CmdFactoryReset:
		return h.handleFactoryReset()
	case CmdGetVersion:
		return h.handleGetVersion()
	case CmdDiscover:
		return h.handleDiscover()
	default:
		return &Response{Status: StatusInvalidCmd}
	}
}

// handlePing responds with the same payload (echo).
func (h *Handler) handlePing(payload []byte) *Response {
	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleStatus reports the live keyboard state.
// Response: [Present:1][Locks:1][Modifiers:1]
func (h *Handler) handleStatus() *Response {
	payload := make([]byte, 3)
	if h.driver.Present() {
		payload[0] = 1
	}

	scroll, caps, num := h.driver.Locks()
	if scroll {
		payload[1] |= 1 << settings.LockScroll
	}
	if caps {
		payload[1] |= 1 << settings.LockCaps
	}
	if num {
		payload[1] |= 1 << settings.LockNum
	}

	payload[2] = byte(h.driver.Modifiers())

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleGetMatrix returns a snapshot of the switch matrix.
// Response: [Row0:1]...[Row7:1]
func (h *Handler) handleGetMatrix() *Response {
	rows := h.driver.StateTable().Snapshot()

	return &Response{
		Status:  StatusOK,
		Payload: rows[:],
	}
}

// handleGetSettings returns the settings the driver is running with.
func (h *Handler) handleGetSettings() *Response {
	cfg := h.driver.Settings()

	data, err := cfg.MarshalBinary()
	if err != nil {
		return &Response{Status: StatusError}
	}

	return &Response{
		Status:  StatusOK,
		Payload: data,
	}
}

// handleSetSettings validates and persists new settings. They take
// effect on the next boot; the running driver keeps its configuration.
// Payload: [Settings:8 bytes]
func (h *Handler) handleSetSettings(payload []byte) *Response {
	if len(payload) != settings.Size {
		return &Response{Status: StatusInvalidData}
	}

	var cfg settings.Settings
	if err := cfg.UnmarshalBinary(payload); err != nil {
		return &Response{Status: StatusInvalidData}
	}

	if cfg.Version != settings.CurrentVersion {
		return &Response{Status: StatusVersionMismatch}
	}
	if err := cfg.Validate(); err != nil {
		return &Response{Status: StatusInvalidData}
	}

	if err := h.storage.Save(&cfg); err != nil {
		return &Response{Status: StatusError}
	}

	return &Response{Status: StatusOK}
}

// handleReadKey pops the oldest buffered keystroke.
// Response: [Code:2] little-endian composite code
func (h *Handler) handleReadKey() *Response {
	code := h.driver.Key()
	if code == 0 {
		return &Response{Status: StatusNotFound}
	}

	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, uint16(code))

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleGetStorageStats returns storage statistics.
// Response: [Total:4][Saved:1]
func (h *Handler) handleGetStorageStats() *Response {
	stats := h.storage.GetStats()

	payload := make([]byte, 5)
	binary.LittleEndian.PutUint32(payload[0:], uint32(stats.TotalSpace))
	if stats.Saved {
		payload[4] = 1
	}

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleFactoryReset wipes the saved settings; the defaults apply on
// the next boot.
func (h *Handler) handleFactoryReset() *Response {
	if err := h.storage.Wipe(); err != nil {
		return &Response{Status: StatusError}
	}
	return &Response{Status: StatusOK}
}

// handleGetVersion returns firmware and settings version info.
// Response: [FirmwareMajor:1][FirmwareMinor:1][SettingsVersion:2]
func (h *Handler) handleGetVersion() *Response {
	payload := make([]byte, 4)
	payload[0] = FirmwareMajor
	payload[1] = FirmwareMinor
	binary.LittleEndian.PutUint16(payload[2:], settings.CurrentVersion)

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleDiscover identifies the device to a probing PC app.
func (h *Handler) handleDiscover() *Response {
	return &Response{
		Status:  StatusOK,
		Payload: []byte(DeviceName),
	}
}

// calcCRC calculates CRC16-CCITT.
// Polynomial: 0x1021, Initial: 0xFFFF
func calcCRC(data []byte) uint16 {
	var crc uint16 = 0xFFFF

	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}
