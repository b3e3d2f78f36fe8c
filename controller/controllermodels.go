package controller

import (
	"time"

	"github.com/bigjimnolan/sssaitrigger/captureservice"
	"github.com/bigjimnolan/sssaitrigger/debounceservice"
	"github.com/bigjimnolan/sssaitrigger/detectionservice"
	"github.com/bigjimnolan/sssaitrigger/eventservice"
	"github.com/bigjimnolan/sssaitrigger/mqttservice"
)

// SSSAIConfig is the whole relay configuration. Key names follow the
// settings.json/cameras.json layout older installs already have.
type SSSAIConfig struct {
	SSSURL               string `json:"sssUrl" yaml:"sssUrl" env:"SSSAI_SSS_URL"`
	DeepstackURL         string `json:"deepstackUrl" yaml:"deepstackUrl" env:"SSSAI_DEEPSTACK_URL"`
	HomebridgeWebhookURL string `json:"homebridgeWebhookUrl" yaml:"homebridgeWebhookUrl" env:"SSSAI_HOMEBRIDGE_URL"`
	Username             string `json:"username" yaml:"username" env:"SSSAI_USERNAME"`
	Password             string `json:"password" yaml:"password" env:"SSSAI_PASSWORD"`
	VerifyTLS            bool   `json:"verify_tls" yaml:"verify_tls" env:"SSSAI_VERIFY_TLS"`

	DetectLabels    []string `json:"detect_labels" yaml:"detect_labels" env:"SSSAI_DETECT_LABELS" envSeparator:","`
	TimeoutSeconds  int      `json:"timeout" yaml:"timeout" env:"SSSAI_TIMEOUT"`
	HTTPTimeout     int      `json:"httpTimeout" yaml:"httpTimeout" env:"SSSAI_HTTP_TIMEOUT"`
	MinSizeX        int      `json:"min_sizex" yaml:"min_sizex" env:"SSSAI_MIN_SIZEX"`
	MinSizeY        int      `json:"min_sizey" yaml:"min_sizey" env:"SSSAI_MIN_SIZEY"`
	MinConfidence   int      `json:"min_confidence" yaml:"min_confidence" env:"SSSAI_MIN_CONFIDENCE"`
	TriggerInterval float64  `json:"triggerInterval" yaml:"triggerInterval" env:"SSSAI_TRIGGER_INTERVAL"`
	CaptureDir      string   `json:"captureDir" yaml:"captureDir" env:"SSSAI_CAPTURE_DIR"`

	LogLevel       string `json:"log_level" yaml:"log_level" env:"SSSAI_LOG_LEVEL"`
	JSONLogs       bool   `json:"json_logs" yaml:"json_logs" env:"SSSAI_JSON_LOGS"`
	APIPort        int    `json:"sssai_api_port" yaml:"sssai_api_port" env:"SSSAI_API_PORT"`
	ServerCertPath string `json:"tls_cert" yaml:"tls_cert" env:"SSSAI_TLS_CERT"`
	ServerKeyPath  string `json:"tls_key" yaml:"tls_key" env:"SSSAI_TLS_KEY"`

	Cameras     map[string]CameraConfig `json:"cameras" yaml:"cameras"`
	CamerasFile string                  `json:"camerasFile" yaml:"camerasFile" env:"SSSAI_CAMERAS_FILE"`

	Pushover   PushoverConfig             `json:"pushover" yaml:"pushover"`
	Debounce   debounceservice.Config     `json:"debounce" yaml:"debounce"`
	Minio      captureservice.MinioConfig `json:"minio" yaml:"minio"`
	MQTTBroker mqttservice.MQTTService    `json:"mqttBroker" yaml:"mqttBroker"`
	MQTT       eventservice.EventService  `json:"mqtt" yaml:"mqtt"`
}

type CameraConfig struct {
	Name         string                    `json:"name" yaml:"name"`
	TriggerURL   string                    `json:"triggerUrl" yaml:"triggerUrl"`
	HomekitAccID string                    `json:"homekitAccId" yaml:"homekitAccId"`
	IgnoreAreas  []detectionservice.Region `json:"ignore_areas" yaml:"ignore_areas"`
}

type PushoverConfig struct {
	Token   string `json:"token" yaml:"token" env:"PUSHOVER_TOKEN"`
	UserKey string `json:"userKey" yaml:"userKey" env:"PUSHOVER_USER_KEY"`
	URL     string `json:"url" yaml:"url" env:"PUSHOVER_URL"`
}

func (c *SSSAIConfig) DetectionTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *SSSAIConfig) Interval() time.Duration {
	return time.Duration(c.TriggerInterval * float64(time.Second))
}

func (c *SSSAIConfig) ClientTimeout() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}
