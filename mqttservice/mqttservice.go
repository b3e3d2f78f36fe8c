package mqttservice

import (
	"context"

	"github.com/rs/zerolog/log"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/bigjimnolan/sssaitrigger/metricsservice"
)

// MQTTService is an optional embedded broker for installs that have no
// broker of their own. Trigger publishers and the event listener both
// connect to it like any other broker.
type MQTTService struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"MQTT_BROKER_ENABLED"`
	ID      string `json:"id" yaml:"id"`
	Address string `json:"address" yaml:"address" env:"MQTT_BROKER_ADDRESS"`
}

// Start runs the broker until ctx is cancelled. metrics may be nil.
func (mqt MQTTService) Start(ctx context.Context, metrics *metricsservice.Metrics) error {
	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
	})

	_ = server.AddHook(new(auth.AllowHook), nil)
	log.Info().Msgf("Starting MQTT server on %s %s", mqt.ID, mqt.Address)
	tcp := listeners.NewTCP(listeners.Config{
		ID:      mqt.ID,
		Address: mqt.Address,
	})
	err := server.AddListener(tcp)
	if err != nil {
		return err
	}

	err = server.AddHook(new(TriggerHook), &TriggerHookOptions{
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	go func() {
		err := server.Serve()
		if err != nil {
			log.Fatal().Msgf("Error serving mqtt: %v", err)
		}
	}()

	<-ctx.Done()
	log.Warn().Msg("MQTT broker stopping...")
	return server.Close()
}
