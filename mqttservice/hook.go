package mqttservice

import (
	"bytes"
	"errors"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/rs/zerolog/log"

	"github.com/bigjimnolan/sssaitrigger/metricsservice"
)

type TriggerHookOptions struct {
	Metrics *metricsservice.Metrics
}

// TriggerHook logs broker traffic and feeds the client and message metrics.
type TriggerHook struct {
	mqtt.HookBase
	metrics *metricsservice.Metrics
}

func (h *TriggerHook) ID() string {
	return "sssai-trigger-hook"
}

func (h *TriggerHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnect,
		mqtt.OnDisconnect,
		mqtt.OnPublished,
	}, []byte{b})
}

func (h *TriggerHook) Init(config any) error {
	if config == nil {
		return nil
	}
	opts, ok := config.(*TriggerHookOptions)
	if !ok {
		return errors.New("invalid trigger hook options")
	}
	h.metrics = opts.Metrics
	return nil
}

func (h *TriggerHook) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	log.Info().Msgf("mqtt client connected: %s", cl.ID)
	h.metrics.ClientConnected()
	return nil
}

func (h *TriggerHook) OnDisconnect(cl *mqtt.Client, err error, expire bool) {
	if err != nil {
		log.Info().Msgf("mqtt client disconnected: %s (%v)", cl.ID, err)
	} else {
		log.Info().Msgf("mqtt client disconnected: %s", cl.ID)
	}
	h.metrics.ClientDisconnected()
}

func (h *TriggerHook) OnPublished(cl *mqtt.Client, pk packets.Packet) {
	log.Debug().Msgf("mqtt published by %s to %s: %s", cl.ID, pk.TopicName, pk.Payload)
	h.metrics.MQTTMessage(pk.TopicName)
}
