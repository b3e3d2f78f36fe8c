package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bigjimnolan/sssaitrigger/apiservice"
	"github.com/bigjimnolan/sssaitrigger/debounceservice"
	"github.com/bigjimnolan/sssaitrigger/eventservice"
	"github.com/bigjimnolan/sssaitrigger/mqttservice"
	"github.com/bigjimnolan/sssaitrigger/triggerservice"
)

const ConfigEnvVar = "SSSAI_CONFIG_FILE"

// DefaultConfig returns the configuration used for every key the file and
// environment leave unset.
func DefaultConfig() *SSSAIConfig {
	return &SSSAIConfig{
		VerifyTLS:       true,
		DetectLabels:    []string{"car", "person"},
		TimeoutSeconds:  10,
		HTTPTimeout:     10,
		TriggerInterval: 60,
		CaptureDir:      "/captureDir",
		LogLevel:        "info",
		APIPort:         4242,
		Cameras:         map[string]CameraConfig{},
		Debounce: debounceservice.Config{
			Backend: debounceservice.BackendFile,
			Path:    "/tmp/sssai-last-trigger.json",
		},
		MQTTBroker: mqttservice.MQTTService{
			ID:      "sssai-broker",
			Address: ":1883",
		},
		MQTT: eventservice.EventService{
			MqttURL:       "tcp://localhost",
			MqttPort:      "1883",
			ClientID:      "sssai-trigger",
			TriggerTopics: []string{eventservice.DefaultTriggerTopic},
			OutcomeTopic:  eventservice.DefaultOutcomeTopic,
		},
	}
}

// ConfigPath prefers the flag value and falls back to SSSAI_CONFIG_FILE.
func ConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(ConfigEnvVar)
}

// LoadConfig reads path (JSON, JSONC or YAML by extension), merges an optional
// cameras file, applies environment overrides and validates the result.
func LoadConfig(path string) (*SSSAIConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if cfg.CamerasFile != "" {
		cameras := map[string]CameraConfig{}
		camerasPath := cfg.CamerasFile
		if !filepath.IsAbs(camerasPath) && path != "" {
			camerasPath = filepath.Join(filepath.Dir(path), camerasPath)
		}
		if err := decodeFile(camerasPath, &cameras); err != nil {
			return nil, err
		}
		if cfg.Cameras == nil {
			cfg.Cameras = map[string]CameraConfig{}
		}
		for id, cam := range cameras {
			if _, inline := cfg.Cameras[id]; inline {
				log.Warn().Msgf("Camera %s defined in both config and %s, keeping the inline one", id, camerasPath)
				continue
			}
			cfg.Cameras[id] = cam
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), v)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration once at startup.
func (c *SSSAIConfig) Validate() error {
	var errs []error
	if c.SSSURL == "" {
		errs = append(errs, errors.New("sssUrl is required"))
	}
	if c.DeepstackURL == "" {
		errs = append(errs, errors.New("deepstackUrl is required"))
	}
	if len(c.DetectLabels) == 0 {
		errs = append(errs, errors.New("detect_labels must not be empty"))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %d", c.TimeoutSeconds))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("httpTimeout must be positive, got %d", c.HTTPTimeout))
	}
	if c.TriggerInterval < 0 {
		errs = append(errs, fmt.Errorf("triggerInterval must not be negative, got %v", c.TriggerInterval))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("sssai_api_port out of range: %d", c.APIPort))
	}
	if !lo.Contains([]string{"", debounceservice.BackendFile, debounceservice.BackendMemory, debounceservice.BackendPostgres}, c.Debounce.Backend) {
		errs = append(errs, fmt.Errorf("unknown debounce backend %q", c.Debounce.Backend))
	}
	if c.Debounce.Backend == debounceservice.BackendPostgres && c.Debounce.DSN == "" {
		errs = append(errs, errors.New("debounce dsn is required for the postgres backend"))
	}
	if len(c.Cameras) == 0 {
		errs = append(errs, errors.New("no cameras configured"))
	}
	for id, cam := range c.Cameras {
		if lo.Contains(apiservice.ReservedPaths, id) {
			errs = append(errs, fmt.Errorf("camera id %q is reserved for the /%s endpoint", id, id))
		}
		if cam.Name == "" {
			errs = append(errs, fmt.Errorf("camera %s: name is required", id))
		}
		for i, r := range cam.IgnoreAreas {
			if err := r.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("camera %s ignore_areas[%d]: %w", id, i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// TriggerCameras converts the camera table for the orchestrator.
func (c *SSSAIConfig) TriggerCameras() map[string]triggerservice.Camera {
	return lo.MapEntries(c.Cameras, func(id string, cam CameraConfig) (string, triggerservice.Camera) {
		return id, triggerservice.Camera{
			ID:                 id,
			Name:               cam.Name,
			TriggerURL:         cam.TriggerURL,
			HomekitAccessoryID: cam.HomekitAccID,
			IgnoreAreas:        cam.IgnoreAreas,
		}
	})
}
