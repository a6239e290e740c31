// exo-server exposes the therapy controller over HTTP: gesture
// classifier predictions start sessions, monitors follow progress over
// a websocket, and a cancel endpoint stops the running session.
package main

import (
	"flag"
	"fmt"
	"sync"

	"github.com/243135-tech/lego-robotics/internal/config"
	"github.com/243135-tech/lego-robotics/internal/log"
	"github.com/243135-tech/lego-robotics/pkg/brick"
	"github.com/243135-tech/lego-robotics/pkg/session"
	"github.com/243135-tech/lego-robotics/pkg/telemetry"
	"github.com/243135-tech/lego-robotics/pkg/web"
)

// runner serializes sessions: one at a time, triggered over HTTP.
type runner struct {
	bus brick.Bus
	srv *web.Server
	pub telemetry.Publisher

	mu      sync.Mutex
	seq     *session.Sequencer
	running bool
}

// sessionFor maps a classifier output class to a movement protocol.
func sessionFor(class string) (session.Config, error) {
	cfg := defaultGestureConfig()
	switch class {
	case "grab":
		// Grip assist: short, slow, tightly guarded.
		cfg.AmplitudeDeg = 30
		cfg.ExtendDurationS = 1.5
		cfg.FlexDurationS = 1.5
		cfg.SoftVelocityDPS = 50
		cfg.HardVelocityDPS = 120
	case "lift":
		cfg.AmplitudeDeg = 60
		cfg.ExtendDurationS = 2.0
		cfg.FlexDurationS = 2.0
		cfg.SoftVelocityDPS = 160
		cfg.HardVelocityDPS = 280
	default:
		return session.Config{}, fmt.Errorf("no movement mapped to class %q", class)
	}
	return cfg, nil
}

// defaultGestureConfig is the base protocol for classifier-triggered
// movements: a single position-mode rep per trigger.
func defaultGestureConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Repetitions = 1
	cfg.MidRestS = 0.3
	cfg.RestS = 0
	return cfg
}

func (r *runner) trigger(class string, conf float64, trialID string) error {
	cfg, err := sessionFor(class)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("a session is already running")
	}

	seq, err := session.New(r.bus, cfg)
	if err != nil {
		return err
	}
	seq.SetPublisher(r.pub)
	seq.OnPhase = func(rep session.PhaseReport) {
		r.srv.BroadcastEvent("phase", rep)
		r.srv.UpdateState(func(s *web.SessionState) {
			s.Rep = rep.Rep
			s.LastLabel = rep.Label
			s.LastScore = rep.Result.Metrics.Score
		})
	}
	r.seq = seq
	r.running = true

	r.srv.UpdateState(func(s *web.SessionState) {
		*s = web.SessionState{
			Running:   true,
			Mode:      cfg.Mode,
			TrialID:   trialID,
			TotalReps: cfg.Repetitions,
		}
	})

	go func() {
		sum, err := seq.Run()
		if err != nil {
			log.Error("session failed", "trial", trialID, "error", err)
		}
		r.srv.BroadcastEvent("summary", sum)
		r.srv.UpdateState(func(s *web.SessionState) {
			s.Running = false
			s.SessionID = sum.ID
			s.BatteryVolts = sum.BatteryVolts
		})

		r.mu.Lock()
		r.running = false
		r.seq = nil
		r.mu.Unlock()
	}()
	return nil
}

func (r *runner) cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.seq == nil {
		return fmt.Errorf("no session running")
	}
	r.seq.Cancel()
	return nil
}

func main() {
	var (
		port       = flag.String("port", config.ServerPort(), "HTTP listen port")
		backend    = flag.String("backend", "brickpi", "Actuator backend: brickpi, feetech, sim")
		serialPort = flag.String("serial", "/dev/ttyACM0", "Serial port for the feetech backend")
		debug      = flag.Bool("debug", false, "Enable verbose debug logging")
	)
	flag.Parse()

	if *debug {
		log.Init("debug")
	} else {
		log.Init("info")
	}

	bus := openBus(*backend, *serialPort)
	defer bus.Close()

	var pub telemetry.Publisher = telemetry.Noop{}
	if broker := config.MQTTBroker(); broker != "" {
		mq, err := telemetry.NewMQTT(broker, "exo-server", "exo")
		if err != nil {
			log.Warn("mqtt unavailable, telemetry disabled", "broker", broker, "error", err)
		} else {
			defer mq.Close()
			pub = mq
		}
	}

	srv := web.NewServer(*port)
	r := &runner{bus: bus, srv: srv, pub: pub}
	srv.OnTrigger = r.trigger
	srv.OnCancel = r.cancel

	if err := srv.Start(); err != nil {
		log.Error("server stopped", "error", err)
	}
}

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
