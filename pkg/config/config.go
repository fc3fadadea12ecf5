package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the flat control-plane configuration. Every field has an env
// var; LABFLEET_CONFIG may point to a YAML file whose values fill in fields
// the environment leaves unset (env wins).
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	APIAddr       string `yaml:"api_addr"`
	APIAuthToken  string `yaml:"api_auth_token"`
	APIAdminToken string `yaml:"api_admin_token"`

	DataDir string `yaml:"data_dir"`

	ServiceUsername      string        `yaml:"service_username"`
	ServicePassword      string        `yaml:"service_password"`
	ServiceAPITimeout    time.Duration `yaml:"service_api_timeout"`
	ServiceTLSSkipVerify bool          `yaml:"service_tls_skip_verify"`

	CloudOpTimeout      time.Duration `yaml:"cloud_op_timeout"`
	CloudMetricsTimeout time.Duration `yaml:"cloud_metrics_timeout"`

	WorkerMetricsPollInterval time.Duration `yaml:"worker_metrics_poll_interval"`
	LabsRefreshInterval       time.Duration `yaml:"labs_refresh_interval"`
	ActivityDetectionInterval time.Duration `yaml:"activity_detection_interval"`
	IdleWindow                time.Duration `yaml:"idle_window"`

	AutoImportWorkersEnabled   bool          `yaml:"auto_import_workers_enabled"`
	AutoImportWorkersInterval  time.Duration `yaml:"auto_import_workers_interval"`
	AutoImportWorkersRegion    string        `yaml:"auto_import_workers_region"`
	AutoImportWorkersImageName string        `yaml:"auto_import_workers_image_name"`

	WorkerRefreshThrottle time.Duration `yaml:"worker_refresh_throttle"`
	ShutdownGrace         time.Duration `yaml:"shutdown_grace"`
	SubscriberQueue       int           `yaml:"subscriber_queue"`
}

// Default returns the stock configuration
func Default() Config {
	return Config{
		LogLevel:                  "info",
		LogJSON:                   true,
		APIAddr:                   ":8080",
		DataDir:                   "/var/lib/labfleet",
		ServiceAPITimeout:         15 * time.Second,
		CloudOpTimeout:            15 * time.Second,
		CloudMetricsTimeout:       60 * time.Second,
		WorkerMetricsPollInterval: 300 * time.Second,
		LabsRefreshInterval:       1800 * time.Second,
		ActivityDetectionInterval: 600 * time.Second,
		IdleWindow:                3600 * time.Second,
		AutoImportWorkersInterval: 3600 * time.Second,
		WorkerRefreshThrottle:     60 * time.Second,
		ShutdownGrace:             30 * time.Second,
		SubscriberQueue:           1024,
	}
}

// Load builds the configuration: defaults, then the optional YAML file, then
// the environment on top
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("LABFLEET_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	var err error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, perr := strconv.ParseBool(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = b
		}
	}
	seconds := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = time.Duration(n) * time.Second
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	boolean("LOG_JSON", &cfg.LogJSON)
	str("API_ADDR", &cfg.APIAddr)
	str("API_AUTH_TOKEN", &cfg.APIAuthToken)
	str("API_ADMIN_TOKEN", &cfg.APIAdminToken)
	str("DATA_DIR", &cfg.DataDir)
	str("SERVICE_USERNAME", &cfg.ServiceUsername)
	str("SERVICE_PASSWORD", &cfg.ServicePassword)
	seconds("SERVICE_API_TIMEOUT", &cfg.ServiceAPITimeout)
	boolean("SERVICE_TLS_SKIP_VERIFY", &cfg.ServiceTLSSkipVerify)
	seconds("CLOUD_OP_TIMEOUT", &cfg.CloudOpTimeout)
	seconds("CLOUD_METRICS_TIMEOUT", &cfg.CloudMetricsTimeout)
	seconds("WORKER_METRICS_POLL_INTERVAL", &cfg.WorkerMetricsPollInterval)
	seconds("LABS_REFRESH_INTERVAL", &cfg.LabsRefreshInterval)
	seconds("ACTIVITY_DETECTION_INTERVAL", &cfg.ActivityDetectionInterval)
	seconds("IDLE_WINDOW", &cfg.IdleWindow)
	boolean("AUTO_IMPORT_WORKERS_ENABLED", &cfg.AutoImportWorkersEnabled)
	seconds("AUTO_IMPORT_WORKERS_INTERVAL", &cfg.AutoImportWorkersInterval)
	str("AUTO_IMPORT_WORKERS_REGION", &cfg.AutoImportWorkersRegion)
	str("AUTO_IMPORT_WORKERS_IMAGE_NAME", &cfg.AutoImportWorkersImageName)
	seconds("WORKER_REFRESH_THROTTLE", &cfg.WorkerRefreshThrottle)
	seconds("SHUTDOWN_GRACE", &cfg.ShutdownGrace)
	integer("SUBSCRIBER_QUEUE", &cfg.SubscriberQueue)
	if err != nil {
		return cfg, err
	}

	if cfg.AutoImportWorkersEnabled &&
		(cfg.AutoImportWorkersRegion == "" || cfg.AutoImportWorkersImageName == "") {
		return cfg, fmt.Errorf("auto import requires AUTO_IMPORT_WORKERS_REGION and AUTO_IMPORT_WORKERS_IMAGE_NAME")
	}
	return cfg, nil
}
