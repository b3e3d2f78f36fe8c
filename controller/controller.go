package controller

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bigjimnolan/sssaitrigger/annotateservice"
	"github.com/bigjimnolan/sssaitrigger/apiservice"
	"github.com/bigjimnolan/sssaitrigger/captureservice"
	"github.com/bigjimnolan/sssaitrigger/debounceservice"
	"github.com/bigjimnolan/sssaitrigger/detectionservice"
	"github.com/bigjimnolan/sssaitrigger/metricsservice"
	"github.com/bigjimnolan/sssaitrigger/notifyservice"
	"github.com/bigjimnolan/sssaitrigger/surveillanceservice"
	"github.com/bigjimnolan/sssaitrigger/triggerservice"
	"github.com/bigjimnolan/sssaitrigger/webhookservice"
)

// SetLogLevel maps a config level name onto the global zerolog level.
// Unknown names fall back to warn.
func SetLogLevel(logLevel string) zerolog.Level {
	switch logLevel {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	return zerolog.GlobalLevel()
}

func setupLogger(jsonLogs bool) {
	if jsonLogs {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime})
}

// NewHTTPClient builds the client shared by every outbound call.
func NewHTTPClient(timeout time.Duration, verifyTLS bool) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifyTLS},
		},
	}
}

// BuildOrchestrator wires the trigger pipeline from configuration. The
// returned func releases the debounce store.
func BuildOrchestrator(ctx context.Context, cfg *SSSAIConfig, metrics *metricsservice.Metrics) (*triggerservice.Orchestrator, func() error, error) {
	httpClient := NewHTTPClient(cfg.ClientTimeout(), cfg.VerifyTLS)
	if !cfg.VerifyTLS {
		log.Warn().Msg("TLS verification disabled for outbound calls")
	}

	store, closeStore, err := debounceservice.New(ctx, cfg.Debounce)
	if err != nil {
		return nil, nil, err
	}

	surveillance, err := surveillanceservice.NewClient(cfg.SSSURL, cfg.Username, cfg.Password, httpClient)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	var archiver captureservice.Archiver
	if cfg.Minio.Enabled() {
		a, err := captureservice.NewMinioArchiver(ctx, cfg.Minio)
		if err != nil {
			log.Error().Msgf("Capture archive disabled: %v", err)
		} else {
			archiver = a
		}
	}

	o := &triggerservice.Orchestrator{
		Cameras:   cfg.TriggerCameras(),
		Store:     store,
		Snapshots: surveillance,
		Detector:  detectionservice.NewClient(cfg.DeepstackURL, httpClient),
		Classifier: detectionservice.Classifier{
			Labels:        cfg.DetectLabels,
			MinWidth:      cfg.MinSizeX,
			MinHeight:     cfg.MinSizeY,
			MinConfidence: cfg.MinConfidence,
		},
		Webhooks:         webhookservice.NewClient(cfg.HomebridgeWebhookURL, httpClient),
		Annotator:        annotateservice.New(),
		Captures:         captureservice.New(cfg.CaptureDir, archiver),
		Metrics:          metrics,
		Interval:         cfg.Interval(),
		DetectionTimeout: cfg.DetectionTimeout(),
	}

	pushover := notifyservice.NewPushover(cfg.Pushover.Token, cfg.Pushover.UserKey, httpClient)
	if cfg.Pushover.URL != "" {
		pushover.URL = cfg.Pushover.URL
	}
	if pushover.Enabled() {
		o.Notifier = pushover
	} else {
		log.Warn().Msg("Pushover token or user key missing, notifications disabled")
	}

	return o, closeStore, nil
}

func StartHere(configPath string, logLevelOverride string) {
	cfg, err := LoadConfig(ConfigPath(configPath))
	if err != nil {
		log.Fatal().Msgf("Config could not be loaded, check --config or the %s environment variable\n%v", ConfigEnvVar, err)
	}

	setupLogger(cfg.JSONLogs)
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}
	level := SetLogLevel(cfg.LogLevel)
	log.Info().Msgf("logLevel: %v", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := metricsservice.New()
	orchestrator, closeStore, err := BuildOrchestrator(ctx, cfg, metrics)
	if err != nil {
		log.Fatal().Msgf("Trigger pipeline failed to build %v", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Msgf("Closing debounce store: %v", err)
		}
	}()
	log.Info().Msgf("Loaded %d cameras", len(orchestrator.Cameras))

	wg := &sync.WaitGroup{}

	if cfg.MQTTBroker.Enabled {
		log.Info().Msg("Starting MQTT broker")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cfg.MQTTBroker.Start(ctx, metrics); err != nil {
				log.Fatal().Msgf("MQTT Service Failed to Start %v", err)
			}
		}()
	}

	if cfg.MQTT.Enabled {
		log.Info().Msg("Starting MQTT trigger listener")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cfg.MQTT.Start(ctx, orchestrator); err != nil {
				log.Fatal().Msgf("MQTT trigger listener failed %v", err)
			}
		}()
	}

	log.Info().Msg("Starting API service")
	api := &apiservice.APIService{
		ListenPort:     strconv.Itoa(cfg.APIPort),
		ServerCertPath: cfg.ServerCertPath,
		ServerKeyPath:  cfg.ServerKeyPath,
		Trigger:        orchestrator,
		Metrics:        metrics.Handler(),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := api.Start(ctx); err != nil {
			log.Fatal().Msgf("API Service Failed to Start %v", err)
		}
	}()

	wg.Wait()
	log.Info().Msg("All services stopped")
}
