//go:build nodebug || !tinygo

// Package display provides a no-op stub when built with the nodebug tag
// or off-target. This saves memory by excluding the SSD1306 driver.
//
// To build without display support, use:
//
//	tinygo build -tags=nodebug -target=pico -o firmware.uf2 .
package display

import "github.com/Crudus/L-Star/pkg/keyboard"

// Manager is a no-op stub when the screen is compiled out.
type Manager struct{}

// NewManager returns nil when the screen is compiled out.
// main handles a nil display gracefully.
func NewManager() *Manager {
	return nil
}

// Show is a no-op in nodebug mode.
func (m *Manager) Show(d *keyboard.Driver) {}

// ShowError is a no-op in nodebug mode.
func (m *Manager) ShowError(msg string) {}
