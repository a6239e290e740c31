// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern. It fans
// session progress events out to every connected monitor.
package hub

import "encoding/json"

// Event is the envelope broadcast to monitors. Type names the event
// ("phase", "summary", "status"); Data carries the event body.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
