package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/243135-tech/lego-robotics/internal/log"
)

// publishTimeout bounds how long a publish may block the session loop.
const publishTimeout = 2 * time.Second

// MQTT publishes payloads as retained JSON messages under a topic prefix.
type MQTT struct {
	client mqtt.Client
	prefix string
}

// NewMQTT connects to the broker and returns a publisher with the given
// topic prefix (e.g. "exo").
func NewMQTT(brokerURL, clientID, prefix string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", brokerURL, token.Error())
	}
	log.Info("telemetry connected", "broker", brokerURL, "prefix", prefix)
	return &MQTT{client: client, prefix: prefix}, nil
}

// Publish marshals payload and sends it to prefix/topic at QoS 0.
func (m *MQTT) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telemetry payload: %w", err)
	}
	full := m.prefix + "/" + topic
	token := m.client.Publish(full, 0, true, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", full)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", full, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

var _ Publisher = (*MQTT)(nil)
