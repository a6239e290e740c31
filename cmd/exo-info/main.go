// exo-info prints board diagnostics: identification, firmware, supply
// voltage and the current encoder readings. Useful before a session to
// confirm wiring and battery health.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/243135-tech/lego-robotics/internal/log"
	"github.com/243135-tech/lego-robotics/pkg/brick"
)

func main() {
	flag.Parse()
	log.Init("warn")

	bus, err := brick.OpenBrickPi()
	if err != nil {
		fmt.Fprintf(os.Stderr, "brickpi not reachable: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	show := func(label string, f func() (string, error)) {
		v, err := f()
		if err != nil {
			v = "? (" + err.Error() + ")"
		}
		fmt.Printf("%-14s %s\n", label+":", v)
	}
	show("manufacturer", bus.Manufacturer)
	show("board", bus.Board)
	show("firmware", bus.FirmwareVersion)

	if v, err := bus.BatteryVoltage(); err != nil {
		fmt.Printf("%-14s ? (%v)\n", "battery:", err)
	} else {
		warn := ""
		if v < 8.0 {
			warn = "  LOW - charge before use"
		}
		fmt.Printf("%-14s %.2f V%s\n", "battery:", v, warn)
	}

	for _, m := range brick.Motors() {
		if pos, err := bus.Position(m); err != nil {
			fmt.Printf("%-14s ? (%v)\n", m.String()+":", err)
		} else {
			fmt.Printf("%-14s %.1f deg\n", m.String()+":", pos)
		}
	}
}
