package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sua-org/cam-snap/internal/core"
	"github.com/sua-org/cam-snap/internal/logger"
	"github.com/sua-org/cam-snap/internal/mqttclient"
	"github.com/sua-org/cam-snap/internal/snapshot"
	"github.com/sua-org/cam-snap/internal/storage"
)

type Config struct {
	Camera  CameraConfig
	Capture CaptureConfig
	Minio   MinioConfig
	MQTT    MQTTConfig
	Trigger TriggerConfig
	Log     LogConfig
}

type CameraConfig struct {
	IP       string `env:"CAMERA_IP"`
	User     string `env:"CAMERA_USER"`
	Password string `env:"CAMERA_PASSWORD"`
	// lista separada por vírgula; vazia = só a posição atual
	Presets string `env:"CAMERA_PRESETS,"`
}

type CaptureConfig struct {
	PresetWaitSec     float64 `env:"PRESET_WAIT,14"`
	MaxRetries        int     `env:"MAX_RETRIES,3"`
	RetryDelaySec     float64 `env:"RETRY_DELAY,2"`
	RetryBackoff      string  `env:"RETRY_BACKOFF,fixed"`
	CaptureTimeoutSec float64 `env:"CAPTURE_TIMEOUT,20"`
	SnapshotDir       string  `env:"SNAPSHOT_DIR,"`
	FFmpegPath        string  `env:"FFMPEG_PATH,ffmpeg"`
}

type MinioConfig struct {
	Endpoint      string `env:"MINIO_ENDPOINT,localhost:9000"`
	AccessKey     string `env:"MINIO_ACCESS_KEY,"`
	SecretKey     string `env:"MINIO_SECRET_KEY,"`
	Bucket        string `env:"MINIO_BUCKET,snapshots"`
	UseSSL        bool   `env:"MINIO_USE_SSL,false"`
	PublicBaseURL string `env:"MINIO_PUBLIC_BASE_URL,"`
}

type MQTTConfig struct {
	Host      string `env:"MQTT_HOST,"`
	Port      int    `env:"MQTT_PORT,1883"`
	Username  string `env:"MQTT_USERNAME,"`
	Password  string `env:"MQTT_PASSWORD,"`
	ClientID  string `env:"MQTT_CLIENT_ID,cam-snap"`
	BaseTopic string `env:"MQTT_BASE_TOPIC,cam-snap"`
}

type TriggerConfig struct {
	Schedule string `env:"SNAPSHOT_SCHEDULE,0 */30 * * * *"`
	HTTPAddr string `env:"HTTP_ADDR,:8080"`
}

type LogConfig struct {
	Level       string `env:"LOG_LEVEL,info"`
	ToFile      bool   `env:"LOG_TO_FILE,false"`
	FileName    string `env:"LOG_FILE_NAME,cam-snap"`
	Dir         string `env:"LOG_DIR,./logs"`
	Formatted   bool   `env:"LOG_FORMATTED,true"`
	MaxSizeMB   int    `env:"LOG_MAX_SIZE_MB,10"`
	MaxLogFiles int    `env:"LOG_MAX_FILES,7"`
}

// Load lê o ambiente (chame LoadDotenv antes se quiser .env) e valida.
func Load() (*Config, error) {
	var cfg Config
	if err := fromEnv(&cfg); err != nil {
		return nil, err
	}
	if cfg.Capture.SnapshotDir == "" {
		cfg.Capture.SnapshotDir = os.TempDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Camera.IP) == "" {
		errs = append(errs, errors.New("CAMERA_IP must not be empty"))
	}
	if c.Capture.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be positive, got %d", c.Capture.MaxRetries))
	}
	if c.Capture.CaptureTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("CAPTURE_TIMEOUT must be positive, got %v", c.Capture.CaptureTimeoutSec))
	}
	if c.Capture.PresetWaitSec < 0 {
		errs = append(errs, fmt.Errorf("PRESET_WAIT must not be negative, got %v", c.Capture.PresetWaitSec))
	}
	if c.Capture.RetryDelaySec < 0 {
		errs = append(errs, fmt.Errorf("RETRY_DELAY must not be negative, got %v", c.Capture.RetryDelaySec))
	}
	if _, err := snapshot.BackoffFromConfig(c.Capture.RetryBackoff, 0); err != nil {
		errs = append(errs, fmt.Errorf("RETRY_BACKOFF: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) Endpoint() core.CameraEndpoint {
	return core.CameraEndpoint{
		Address:  strings.TrimSpace(c.Camera.IP),
		Username: c.Camera.User,
		Password: c.Camera.Password,
	}
}

// Presets devolve os tokens de CAMERA_PRESETS; vazio = [""] (posição atual).
func (c *Config) Presets() []string {
	out := parseCSV(c.Camera.Presets)
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func (c *Config) Policy() snapshot.Policy {
	delay := seconds(c.Capture.RetryDelaySec)
	backoff, err := snapshot.BackoffFromConfig(c.Capture.RetryBackoff, delay)
	if err != nil {
		backoff = snapshot.FixedBackoff(delay)
	}
	return snapshot.Policy{
		MaxRetries:     c.Capture.MaxRetries,
		Backoff:        backoff,
		PresetWait:     seconds(c.Capture.PresetWaitSec),
		CaptureTimeout: seconds(c.Capture.CaptureTimeoutSec),
	}
}

func (c *Config) Storage() storage.Config {
	return storage.Config{
		Endpoint:      c.Minio.Endpoint,
		AccessKey:     c.Minio.AccessKey,
		SecretKey:     c.Minio.SecretKey,
		Bucket:        c.Minio.Bucket,
		UseSSL:        c.Minio.UseSSL,
		PublicBaseURL: c.Minio.PublicBaseURL,
	}
}

// MQTTClient monta a config do cliente; clientID sobrescreve MQTT_CLIENT_ID
// quando MQTT_CLIENT_ID não foi definido explicitamente.
func (c *Config) MQTTClient(clientID string) mqttclient.Config {
	id := c.MQTT.ClientID
	if os.Getenv("MQTT_CLIENT_ID") == "" && clientID != "" {
		id = clientID
	}
	return mqttclient.Config{
		Host:      c.MQTT.Host,
		Port:      c.MQTT.Port,
		Username:  c.MQTT.Username,
		Password:  c.MQTT.Password,
		ClientID:  id,
		BaseTopic: c.MQTT.BaseTopic,
	}
}

func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.Log.Level,
		ToFile:      c.Log.ToFile,
		FileName:    c.Log.FileName,
		Dir:         c.Log.Dir,
		Formatted:   c.Log.Formatted,
		MaxSizeMB:   c.Log.MaxSizeMB,
		MaxLogFiles: c.Log.MaxLogFiles,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
