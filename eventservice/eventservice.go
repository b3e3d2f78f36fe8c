package eventservice

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gosrc.io/mqtt"

	"github.com/bigjimnolan/sssaitrigger/triggerservice"
)

// Trigger runs one camera event.
type Trigger interface {
	Handle(ctx context.Context, cameraID string) triggerservice.Outcome
}

func (es *EventService) topics() []string {
	topics := lo.Uniq(lo.Compact(es.TriggerTopics))
	if len(topics) == 0 {
		log.Info().Msgf("No topics to subscribe to, defaulting to %s", DefaultTriggerTopic)
		topics = []string{DefaultTriggerTopic}
	}
	return topics
}

func (es *EventService) outcomeTopic() string {
	if es.OutcomeTopic == "" {
		return DefaultOutcomeTopic
	}
	return es.OutcomeTopic
}

// address builds the broker URL for the client. The client only dials tcp://
// and tls:// URLs, so a bare host gets tcp://.
func (es *EventService) address() string {
	host := es.MqttURL
	if host == "" {
		host = "localhost"
	}
	if !strings.Contains(host, "://") {
		host = "tcp://" + host
	}
	if es.MqttPort == "" {
		return host
	}
	return host + ":" + es.MqttPort
}

// Start subscribes to the trigger topics and runs every trigger through the
// orchestrator until ctx is cancelled. Each message is handled on its own
// goroutine; events for one camera are serialized by the orchestrator.
func (es *EventService) Start(ctx context.Context, trigger Trigger) error {
	client := mqtt.NewClient(es.address())
	client.ClientID = es.ClientID
	if client.ClientID == "" {
		client.ClientID = "sssai-trigger"
	}

	messages := make(chan mqtt.Message)
	client.Messages = messages

	// packet ids are not synchronized by the client
	var publishMu sync.Mutex
	connected := make(chan struct{})
	var connectedOnce sync.Once

	postConnect := func(c *mqtt.Client) {
		publishMu.Lock()
		defer publishMu.Unlock()
		log.Info().Msgf("mqtt Connected to %s", es.address())
		for _, name := range es.topics() {
			topic := mqtt.Topic{Name: name, QOS: 0}
			c.Subscribe(topic)
			log.Info().Msgf("Subscribed to topic: %s", name)
		}
		connectedOnce.Do(func() { close(connected) })
	}
	cm := mqtt.NewClientManager(client, postConnect)
	// Start retries until the broker answers and does not watch ctx.
	go cm.Start()

	select {
	case <-ctx.Done():
		log.Warn().Msgf("mqtt listener stopping, never connected to %s", es.address())
		return nil
	case <-connected:
	}

	defer func() {
		// Stop closes messages; keep it drained so the receiver is never stuck.
		go func() {
			for range messages {
			}
		}()
		publishMu.Lock()
		cm.Stop()
		publishMu.Unlock()
		log.Info().Msg("mqtt Disconnected")
	}()

	publish := func(out triggerservice.Outcome) {
		payload, err := json.Marshal(NewOutcomeMessage(out))
		if err != nil {
			log.Error().Msgf("Failed to encode outcome: %v", err)
			return
		}
		publishMu.Lock()
		defer publishMu.Unlock()
		client.Publish(es.outcomeTopic(), payload)
		log.Debug().Msgf("Published outcome to topic %s: %s", es.outcomeTopic(), payload)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			cameraID, err := ParseTrigger(m.Payload)
			if err != nil {
				log.Warn().Msgf("Ignoring trigger payload %q: %v", m.Payload, err)
				continue
			}
			log.Debug().Msgf("Trigger received over mqtt for camera %s", cameraID)
			wg.Add(1)
			go func(cameraID string) {
				defer wg.Done()
				publish(trigger.Handle(ctx, cameraID))
			}(cameraID)
		}
	}
}
