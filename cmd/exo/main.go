// exo runs one exoskeleton therapy session from the command line.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/243135-tech/lego-robotics/internal/config"
	"github.com/243135-tech/lego-robotics/internal/log"
	"github.com/243135-tech/lego-robotics/pkg/brick"
	"github.com/243135-tech/lego-robotics/pkg/session"
	"github.com/243135-tech/lego-robotics/pkg/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Session config JSON file")
		preset     = flag.String("preset", "", "Patient preset: beginner, intermediate, advanced")
		mode       = flag.String("mode", "", "Drive mode: position, power, settling")
		amplitude  = flag.Float64("amplitude", 0, "Excursion amplitude in degrees")
		reps       = flag.Int("reps", 0, "Number of repetitions")
		invert     = flag.Bool("invert", false, "Swap extend/flex direction")
		backend    = flag.String("backend", "brickpi", "Actuator backend: brickpi, feetech, sim")
		serialPort = flag.String("serial", "/dev/ttyACM0", "Serial port for the feetech backend")
		out        = flag.String("out", "", "Write the session summary JSON to this file")
		debug      = flag.Bool("debug", false, "Enable verbose debug logging")
	)
	flag.Parse()

	if *debug {
		log.Init("debug")
	} else {
		log.Init("info")
	}

	cfg, err := loadConfig(*configPath, *preset)
	if err != nil {
		log.Error("configuration", "error", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *amplitude > 0 {
		cfg.AmplitudeDeg = *amplitude
	}
	if *reps > 0 {
		cfg.Repetitions = *reps
	}
	if *invert {
		cfg.Invert = true
	}

	bus := openBus(*backend, *serialPort)
	defer bus.Close()

	seq, err := session.New(bus, cfg)
	if err != nil {
		log.Error("session setup", "error", err)
		os.Exit(1)
	}

	if broker := config.MQTTBroker(); broker != "" {
		pub, err := telemetry.NewMQTT(broker, "exo-cli", "exo")
		if err != nil {
			log.Warn("mqtt unavailable, telemetry disabled", "broker", broker, "error", err)
		} else {
			defer pub.Close()
			seq.SetPublisher(pub)
		}
	}

	seq.OnPhase = func(r session.PhaseReport) {
		fmt.Printf("rep %d %-6s  outcome=%-9s  score=%.1f\n",
			r.Rep, r.Label, r.Result.Outcome, r.Result.Metrics.Score)
	}

	// First Ctrl-C winds the session down; a second one force-quits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("stop requested, finishing current movement")
		seq.Cancel()
		<-sigCh
		log.Warn("forced exit")
		bus.ResetAll()
		os.Exit(1)
	}()

	sum, err := seq.Run()
	if err != nil {
		log.Error("session error", "error", err)
	}
	report(sum, *out)
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig(path, preset string) (session.Config, error) {
	switch {
	case path != "" && preset != "":
		return session.Config{}, fmt.Errorf("-config and -preset are mutually exclusive")
	case path != "":
		return session.LoadConfig(path)
	case preset != "":
		return session.Preset(preset)
	default:
		return session.DefaultConfig(), nil
	}
}

// openBus connects to the requested actuator backend, falling back to
// the simulator when hardware is unreachable so bench work still runs.
func openBus(backend, serialPort string) brick.Bus {
	switch backend {
	case "sim":
		log.Info("using simulated actuators")
		return brick.NewSim()
	case "feetech":
		bus, err := brick.OpenFeetech(serialPort, 1, 2)
		if err != nil {
			log.Warn("feetech bus unavailable, falling back to simulator", "error", err)
			return brick.NewSim()
		}
		return bus
	default:
		bus, err := brick.OpenBrickPi()
		if err != nil {
			log.Warn("brickpi unavailable, falling back to simulator", "error", err)
			return brick.NewSim()
		}
		return bus
	}
}

func report(sum *session.Summary, out string) {
	fmt.Printf("\nsession %s: %s, %d phases, average score %.1f\n",
		sum.ID, sum.Outcome, len(sum.Phases), sum.AverageScore)

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		log.Error("encode summary", "error", err)
		return
	}
	if out == "" {
		return
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		log.Error("write summary", "path", out, "error", err)
		return
	}
	log.Info("summary written", "path", out)
}
