//go:build !nodebug && tinygo

// Package display drives an SSD1306 OLED as a status screen: PS/2 link
// state, lock and modifier flags, and a live picture of the 8x8 switch
// matrix in the lower right corner.
//
// To build without display support (saves ~1KB RAM and flash), use:
//
//	tinygo build -tags=nodebug -target=pico -o firmware.uf2 .
package display

import (
	"fmt"
	"image/color"
	"machine"
	"time"

	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/Crudus/L-Star/pkg/keyboard"
)

const (
	// I2C configuration
	i2cAddress = 0x3C
	sclPin     = machine.GPIO1
	sdaPin     = machine.GPIO0

	// Display dimensions
	screenWidth  = 128
	screenHeight = 64

	// text baselines
	lineLink  = 10
	lineLocks = 24
	lineMods  = 38
	lineBuf   = 52

	// matrix grid, lower right corner: 8x8 cells on a 4px pitch
	gridLeft = 94
	gridTop  = 30
	gridCell = 3
	gridStep = 4

	// widest line that fits the screen in the status font
	lineCols = 21
)

var white = color.RGBA{255, 255, 255, 255}

var font = &proggy.TinySZ8pt7b

// Manager handles the SSD1306 status screen.
type Manager struct {
	device *ssd1306.Device
	i2c    *machine.I2C
}

// NewManager creates and initializes the display manager.
// Returns nil if display initialization fails (the screen is optional).
func NewManager() *Manager {
	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 400000, // 400kHz fast mode
		SCL:       sclPin,
		SDA:       sdaPin,
	}); err != nil {
		fmt.Printf("I2C config failed: %v\n", err)
		return nil
	}

	// Small delay for bus stabilization
	time.Sleep(10 * time.Millisecond)

	dev := ssd1306.NewI2C(i2c)
	dev.Configure(ssd1306.Config{
		Address: i2cAddress,
		Width:   screenWidth,
		Height:  screenHeight,
	})
	dev.ClearDisplay()

	mgr := &Manager{
		device: dev,
		i2c:    i2c,
	}

	tinyfont.WriteLine(dev, font, 0, lineLink, "L-Star PS/2", white)
	tinyfont.WriteLine(dev, font, 0, lineLocks, "waiting for keyboard", white)
	dev.Display()

	return mgr
}

// Show redraws the whole screen from the driver's current state. It
// reads only the non-destructive views, so the key buffer is left for
// the protocol clients.
func (m *Manager) Show(d *keyboard.Driver) {
	if m == nil {
		return
	}
	m.device.ClearBuffer()

	tinyfont.WriteLine(m.device, font, 0, lineLink, LinkLine(d.Present()), white)
	scroll, caps, num := d.Locks()
	tinyfont.WriteLine(m.device, font, 0, lineLocks, LockLine(scroll, caps, num), white)
	tinyfont.WriteLine(m.device, font, 0, lineMods, ModLine(d.Modifiers()), white)
	if d.GotKey() {
		tinyfont.WriteLine(m.device, font, 0, lineBuf, "keys", white)
	}

	rows := d.StateTable().Snapshot()
	for r, bits := range rows {
		for c := 0; c < 8; c++ {
			if bits&(1<<c) != 0 {
				m.fillCell(c, r)
			}
		}
	}

	m.device.Display()
}

// ShowError displays an error message, boot failures mostly.
func (m *Manager) ShowError(msg string) {
	if m == nil {
		return
	}
	m.device.ClearBuffer()
	tinyfont.WriteLine(m.device, font, 0, lineLink, "error", white)
	tinyfont.WriteLine(m.device, font, 0, lineLocks, truncate(msg, lineCols), white)
	m.device.Display()
}

// fillCell lights one matrix cell on the grid.
func (m *Manager) fillCell(col, row int) {
	x0 := int16(gridLeft + col*gridStep)
	y0 := int16(gridTop + row*gridStep)
	for y := y0; y < y0+gridCell; y++ {
		for x := x0; x < x0+gridCell; x++ {
			m.device.SetPixel(x, y, white)
		}
	}
}
