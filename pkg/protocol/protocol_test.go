package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/Crudus/L-Star/pkg/keyboard"
	"github.com/Crudus/L-Star/pkg/settings"
	"github.com/Crudus/L-Star/pkg/storage"

	"tinygo.org/x/tinyfs"
)

func newTestHandler(t *testing.T) (*Handler, *storage.Manager) {
	blockDev := tinyfs.NewMemoryDevice(256, 4096, 64)
	mgr, err := storage.New(blockDev, true)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	d := keyboard.New(settings.Default())
	return NewHandler(d, mgr), mgr
}

func TestFrameEncodingDecoding(t *testing.T) {
	original := &Frame{
		Cmd:     CmdPing,
		Payload: []byte{1, 2, 3, 4},
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, original); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	if decoded.Cmd != original.Cmd {
		t.Errorf("Cmd: expected 0x%x, got 0x%x", original.Cmd, decoded.Cmd)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("Payload: expected %v, got %v", original.Payload, decoded.Payload)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, &Frame{Cmd: CmdStatus}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if decoded.Cmd != CmdStatus {
		t.Errorf("Cmd: expected 0x%x, got 0x%x", CmdStatus, decoded.Cmd)
	}
	if len(decoded.Payload) != 0 {
		t.Errorf("Payload: expected empty, got %v", decoded.Payload)
	}
}

func TestFrameCRCMismatch(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, &Frame{Cmd: CmdPing, Payload: []byte{5, 6}})

	// corrupt the last CRC byte
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF

	if _, err := ReadFrame(bytes.NewReader(raw)); err != ErrCRCMismatch {
		t.Errorf("Expected ErrCRCMismatch, got %v", err)
	}
}

func TestFrameBadSync(t *testing.T) {
	raw := []byte{0x55, CmdPing, 0, 0, 0, 0}
	if _, err := ReadFrame(bytes.NewReader(raw)); err != ErrInvalidFrame {
		t.Errorf("Expected ErrInvalidFrame, got %v", err)
	}
}

func TestFrameOversized(t *testing.T) {
	// header claims a payload far over the limit
	raw := []byte{SyncByte, CmdPing, 0xFF, 0xFF}
	if _, err := ReadFrame(bytes.NewReader(raw)); err != ErrInvalidFrame {
		t.Errorf("Expected ErrInvalidFrame, got %v", err)
	}
}

func TestReadFrameBody(t *testing.T) {
	// the serial console consumes the sync byte itself while
	// dispatching, then hands off the rest
	var buf bytes.Buffer
	WriteFrame(&buf, &Frame{Cmd: CmdGetVersion})

	sync, _ := buf.ReadByte()
	if sync != SyncByte {
		t.Fatalf("Expected sync byte, got 0x%x", sync)
	}

	decoded, err := ReadFrameBody(&buf)
	if err != nil {
		t.Fatalf("ReadFrameBody failed: %v", err)
	}
	if decoded.Cmd != CmdGetVersion {
		t.Errorf("Cmd: expected 0x%x, got 0x%x", CmdGetVersion, decoded.Cmd)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResponse(&buf, &Response{Status: StatusOK, Payload: []byte{9}}); err != nil {
		t.Fatalf("WriteResponse failed: %v", err)
	}

	// a response parses with the same frame reader, status in the
	// command slot
	decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if decoded.Cmd != StatusOK {
		t.Errorf("Status: expected 0x%x, got 0x%x", StatusOK, decoded.Cmd)
	}
	if !bytes.Equal(decoded.Payload, []byte{9}) {
		t.Errorf("Payload: expected [9], got %v", decoded.Payload)
	}
}

func TestPingCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	frame := &Frame{
		Cmd:     CmdPing,
		Payload: []byte{0xAA, 0xBB, 0xCC},
	}

	resp := handler.Handle(frame)
	if resp.Status != StatusOK {
		t.Fatalf("CmdPing failed: status 0x%x", resp.Status)
	}
	if !bytes.Equal(resp.Payload, frame.Payload) {
		t.Errorf("Echo: expected %v, got %v", frame.Payload, resp.Payload)
	}
}

func TestStatusCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	resp := handler.Handle(&Frame{Cmd: CmdStatus})
	if resp.Status != StatusOK {
		t.Fatalf("CmdStatus failed: status 0x%x", resp.Status)
	}
	if len(resp.Payload) != 3 {
		t.Fatalf("Payload: expected 3 bytes, got %d", len(resp.Payload))
	}

	if resp.Payload[0] != 0 {
		t.Error("Present reported for a driver that has not started")
	}

	// the lock latches are seeded from the default settings
	expected := byte(1<<settings.LockCaps | 1<<settings.LockNum)
	if resp.Payload[1] != expected {
		t.Errorf("Locks: expected 0x%02x, got 0x%02x", expected, resp.Payload[1])
	}
	if resp.Payload[2] != 0 {
		t.Errorf("Modifiers: expected 0, got 0x%02x", resp.Payload[2])
	}
}

func TestGetMatrixCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	resp := handler.Handle(&Frame{Cmd: CmdGetMatrix})
	if resp.Status != StatusOK {
		t.Fatalf("CmdGetMatrix failed: status 0x%x", resp.Status)
	}
	if len(resp.Payload) != 8 {
		t.Fatalf("Payload: expected 8 rows, got %d", len(resp.Payload))
	}
	for r, bits := range resp.Payload {
		if bits != 0 {
			t.Errorf("Row %d: expected empty, got 0x%02x", r, bits)
		}
	}
}

func TestGetSettingsCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	resp := handler.Handle(&Frame{Cmd: CmdGetSettings})
	if resp.Status != StatusOK {
		t.Fatalf("CmdGetSettings failed: status 0x%x", resp.Status)
	}

	var cfg settings.Settings
	if err := cfg.UnmarshalBinary(resp.Payload); err != nil {
		t.Fatalf("Payload does not decode: %v", err)
	}
	if cfg.Flags != settings.Default().Flags {
		t.Errorf("Flags: expected 0x%x, got 0x%x", settings.Default().Flags, cfg.Flags)
	}
}

func TestSetSettingsCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	cfg := settings.Default()
	cfg.Rate = 0x03
	data, _ := cfg.MarshalBinary()

	resp := handler.Handle(&Frame{Cmd: CmdSetSettings, Payload: data})
	if resp.Status != StatusOK {
		t.Fatalf("CmdSetSettings failed: status 0x%x", resp.Status)
	}

	// the new settings are on flash for the next boot
	var saved settings.Settings
	if err := mgr.Load(&saved); err != nil {
		t.Fatalf("Load after set failed: %v", err)
	}
	if saved.Rate != 0x03 {
		t.Errorf("Rate: expected 0x03, got 0x%02x", saved.Rate)
	}
}

func TestSetSettingsRejectsBadData(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	// wrong size
	resp := handler.Handle(&Frame{Cmd: CmdSetSettings, Payload: []byte{1, 2, 3}})
	if resp.Status != StatusInvalidData {
		t.Errorf("Short payload: expected StatusInvalidData, got 0x%x", resp.Status)
	}

	// wrong version
	cfg := settings.Default()
	data, _ := cfg.MarshalBinary()
	binary.LittleEndian.PutUint16(data[0:], settings.CurrentVersion+1)
	resp = handler.Handle(&Frame{Cmd: CmdSetSettings, Payload: data})
	if resp.Status != StatusVersionMismatch {
		t.Errorf("Bad version: expected StatusVersionMismatch, got 0x%x", resp.Status)
	}

	// out-of-range rate
	data, _ = cfg.MarshalBinary()
	data[5] = 0xFF
	resp = handler.Handle(&Frame{Cmd: CmdSetSettings, Payload: data})
	if resp.Status != StatusInvalidData {
		t.Errorf("Bad rate: expected StatusInvalidData, got 0x%x", resp.Status)
	}

	// nothing was persisted
	var saved settings.Settings
	if err := mgr.Load(&saved); err != storage.ErrNotFound {
		t.Errorf("Expected nothing saved, got %v", err)
	}
}

func TestReadKeyEmpty(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	resp := handler.Handle(&Frame{Cmd: CmdReadKey})
	if resp.Status != StatusNotFound {
		t.Errorf("Expected StatusNotFound on an empty buffer, got 0x%x", resp.Status)
	}
}

func TestStorageStatsCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	resp := handler.Handle(&Frame{Cmd: CmdGetStorageStats})
	if resp.Status != StatusOK {
		t.Fatalf("CmdGetStorageStats failed: status 0x%x", resp.Status)
	}
	if len(resp.Payload) != 5 {
		t.Fatalf("Payload: expected 5 bytes, got %d", len(resp.Payload))
	}
	if total := binary.LittleEndian.Uint32(resp.Payload[0:]); total == 0 {
		t.Error("TotalSpace: expected positive size")
	}
	if resp.Payload[4] != 0 {
		t.Error("Saved flag set on empty storage")
	}

	cfg := settings.Default()
	mgr.Save(&cfg)

	resp = handler.Handle(&Frame{Cmd: CmdGetStorageStats})
	if resp.Payload[4] != 1 {
		t.Error("Saved flag clear after save")
	}
}

func TestFactoryResetCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	cfg := settings.Default()
	mgr.Save(&cfg)

	resp := handler.Handle(&Frame{Cmd: CmdFactoryReset})
	if resp.Status != StatusOK {
		t.Fatalf("CmdFactoryReset failed: status 0x%x", resp.Status)
	}
	if mgr.Saved() {
		t.Error("Settings survived the factory reset")
	}
}

func TestVersionCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	resp := handler.Handle(&Frame{Cmd: CmdGetVersion})
	if resp.Status != StatusOK {
		t.Fatalf("CmdGetVersion failed: status 0x%x", resp.Status)
	}
	if len(resp.Payload) != 4 {
		t.Fatalf("Payload: expected 4 bytes, got %d", len(resp.Payload))
	}
	if resp.Payload[0] != FirmwareMajor || resp.Payload[1] != FirmwareMinor {
		t.Errorf("Firmware: expected %d.%d, got %d.%d",
			FirmwareMajor, FirmwareMinor, resp.Payload[0], resp.Payload[1])
	}
	if got := binary.LittleEndian.Uint16(resp.Payload[2:]); got != settings.CurrentVersion {
		t.Errorf("Settings version: expected %d, got %d", settings.CurrentVersion, got)
	}
}

func TestDiscoverCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	resp := handler.Handle(&Frame{Cmd: CmdDiscover})
	if resp.Status != StatusOK {
		t.Fatalf("CmdDiscover failed: status 0x%x", resp.Status)
	}
	if string(resp.Payload) != DeviceName {
		t.Errorf("Expected payload '%s', got '%s'", DeviceName, string(resp.Payload))
	}
}

func TestInvalidCommand(t *testing.T) {
	handler, mgr := newTestHandler(t)
	defer mgr.Close()

	resp := handler.Handle(&Frame{Cmd: 0xEE})
	if resp.Status != StatusInvalidCmd {
		t.Errorf("Expected StatusInvalidCmd, got 0x%x", resp.Status)
	}
}

func BenchmarkFrameRoundTrip(b *testing.B) {
	frame := &Frame{Cmd: CmdSetSettings, Payload: make([]byte, settings.Size)}
	var buf bytes.Buffer

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		WriteFrame(&buf, frame)
		if _, err := ReadFrame(&buf); err != nil {
			b.Fatal(err)
		}
	}
}
