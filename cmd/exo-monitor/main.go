// exo-monitor tails a running controller's progress stream and prints
// phase results as they happen.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/243135-tech/lego-robotics/internal/log"
)

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type phaseEvent struct {
	Rep    int    `json:"rep"`
	Label  string `json:"label"`
	Result struct {
		Outcome string `json:"outcome"`
		Metrics struct {
			Score   float64 `json:"score"`
			RMSJerk float64 `json:"rms_jerk"`
		} `json:"metrics"`
	} `json:"result"`
}

type summaryEvent struct {
	ID           string  `json:"id"`
	Outcome      string  `json:"outcome"`
	AverageScore float64 `json:"average_score"`
}

func main() {
	url := flag.String("url", "ws://localhost:8070/ws/progress", "Progress websocket URL")
	flag.Parse()
	log.Init("info")

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Error("connect failed", "url", *url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *url)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			print(frame)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
	case <-interrupt:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func print(frame []byte) {
	var ev event
	if err := json.Unmarshal(frame, &ev); err != nil {
		log.Warn("undecodable event", "error", err)
		return
	}
	switch ev.Type {
	case "phase":
		var p phaseEvent
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		fmt.Printf("rep %d %-6s  outcome=%-9s  score=%.1f  rms_jerk=%.1f\n",
			p.Rep, p.Label, p.Result.Outcome, p.Result.Metrics.Score, p.Result.Metrics.RMSJerk)
	case "summary":
		var s summaryEvent
		if err := json.Unmarshal(ev.Data, &s); err != nil {
			return
		}
		fmt.Printf("session %s finished: %s, average score %.1f\n", s.ID, s.Outcome, s.AverageScore)
	case "status":
		// periodic snapshots are noise on a terminal; skip
	default:
		fmt.Printf("%s\n", frame)
	}
}
