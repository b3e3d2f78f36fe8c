package eventservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bigjimnolan/sssaitrigger/triggerservice"
)

const (
	DefaultTriggerTopic = "sssai/trigger"
	DefaultOutcomeTopic = "sssai/outcome"
)

// EventService listens for camera triggers on an MQTT broker.
type EventService struct {
	Enabled       bool     `json:"enabled" yaml:"enabled" env:"MQTT_ENABLED"`
	// MqttURL is tcp://host or tls://host; a bare host is dialed over tcp.
	MqttURL       string   `json:"mqttUrl" yaml:"mqttUrl" env:"MQTT_URL"`
	MqttPort      string   `json:"mqttPort" yaml:"mqttPort" env:"MQTT_PORT"`
	ClientID      string   `json:"clientId" yaml:"clientId"`
	TriggerTopics []string `json:"triggerTopics" yaml:"triggerTopics"`
	OutcomeTopic  string   `json:"outcomeTopic" yaml:"outcomeTopic"`
}

// TriggerMessage is the JSON form of a trigger payload. A bare camera id
// is accepted as well.
type TriggerMessage struct {
	Camera string `json:"camera"`
}

// OutcomeMessage is published after every handled trigger.
type OutcomeMessage struct {
	Camera  string `json:"camera"`
	EventID string `json:"event"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

var ErrEmptyTrigger = errors.New("trigger payload has no camera id")

// ParseTrigger extracts the camera id from a trigger payload.
func ParseTrigger(payload []byte) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var msg TriggerMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return "", err
		}
		if msg.Camera == "" {
			return "", ErrEmptyTrigger
		}
		return msg.Camera, nil
	}

	id := strings.Trim(string(trimmed), `"`)
	if id == "" {
		return "", ErrEmptyTrigger
	}
	return id, nil
}

func NewOutcomeMessage(out triggerservice.Outcome) OutcomeMessage {
	msg := OutcomeMessage{
		Camera:  out.CameraID,
		EventID: out.EventID,
		Outcome: out.Kind.String(),
		Message: out.Message,
	}
	if out.Err != nil {
		msg.Error = out.Err.Error()
	}
	return msg
}
