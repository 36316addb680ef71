//go:build tinygo

package main

import (
	"machine"
	"time"

	"github.com/Crudus/L-Star/pkg/display"
	"github.com/Crudus/L-Star/pkg/keyboard"
	"github.com/Crudus/L-Star/pkg/ps2"
	"github.com/Crudus/L-Star/pkg/settings"
	"github.com/Crudus/L-Star/pkg/storage"
	"github.com/Crudus/L-Star/serial"
)

// PS/2 socket wiring. Both lines need external pull-ups to 5V and a
// level shifter; the pico pins are not 5V tolerant.
const (
	clockPin = machine.GPIO2
	dataPin  = machine.GPIO3
)

// displayRefresh paces the status screen redraw.
const displayRefresh = 200 * time.Millisecond

func main() {
	disp := display.NewManager()

	cfg := settings.Default()
	store, err := storage.New(machine.Flash, true)
	if err != nil {
		disp.ShowError("flash: " + err.Error())
		store = nil
	}
	if store != nil {
		// saved settings override the defaults, read trouble leaves the
		// defaults standing
		store.Load(&cfg)
	}

	driver := keyboard.New(cfg)
	if err := driver.Start(ps2.NewPin(clockPin), ps2.NewPin(dataPin)); err != nil {
		disp.ShowError("ps2: " + err.Error())
	}

	session := serial.NewSession(machine.Serial, driver, store)
	go session.Handle()

	if disp == nil {
		select {}
	}
	for {
		disp.Show(driver)
		time.Sleep(displayRefresh)
	}
}
