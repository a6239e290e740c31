// Package telemetry publishes session and phase metrics to an MQTT broker
// so external recorders and dashboards can follow along. Recording to
// storage stays outside this system.
package telemetry

// Publisher sends a JSON-encodable payload to a topic. Implementations
// must be safe for use from the session goroutine.
type Publisher interface {
	Publish(topic string, payload any) error
	Close()
}

// Noop discards everything; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(string, any) error { return nil }
func (Noop) Close()                    {}

var _ Publisher = Noop{}
