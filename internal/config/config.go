// Package config provides environment and file configuration helpers
// for the exoskeleton commands.
package config

import (
	"os"
	"strconv"
)

// Defaults shared by the commands.
const (
	DefaultServerPort = "8070"
	DefaultMQTTBroker = "tcp://localhost:1883"
)

// Env returns the value of key, or fallback if unset or empty.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvFloat returns the float value of key, or fallback if unset or invalid.
func EnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// EnvInt returns the integer value of key, or fallback if unset or invalid.
func EnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// EnvBool returns true if key is set to a truthy value ("1", "true", "yes").
func EnvBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// ServerPort returns the control server port from EXO_PORT or the default.
func ServerPort() string {
	return Env("EXO_PORT", DefaultServerPort)
}

// MQTTBroker returns the telemetry broker URL from MQTT_BROKER.
// Empty means telemetry is disabled.
func MQTTBroker() string {
	return os.Getenv("MQTT_BROKER")
}
