package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// defaultRetentionSchedule sweeps the bucket tree daily at 03:00 local time.
// The sampler's day boundary cannot fire while hourly writes succeed, since
// each write moves the watermark it is measured from.
const defaultRetentionSchedule = "0 3 * * *"

type Config struct {
	AppEnv    string `validate:"oneof=dev prod"`
	LogLevel  slog.Level
	StationID string `validate:"required,max=64,excludesall=/#+"`

	DataRoot          string `validate:"required"`
	WiFiConfigPath    string
	DashboardTemplate string `validate:"required"`
	DashboardAddr     string `validate:"required,hostname_port"`
	// OpsAddr serves /healthz and /metrics; empty disables it.
	OpsAddr string `validate:"omitempty,hostname_port"`

	SampleInterval time.Duration `validate:"gt=0"`
	ErrorBackoff   time.Duration `validate:"gt=0"`

	SensorDriver   string `validate:"oneof=bme280 sim"`
	I2CBus         string
	BME280Address  uint16 `validate:"min=0x03,max=0x77"`
	DisplayEnabled bool
	WindPin        string
	StatusLEDPin   string

	NetworkJoiner string `validate:"oneof=nmcli none"`
	WiFiInterface string
	NTPServer     string

	// MQTTBroker empty disables telemetry.
	MQTTBroker          string
	MQTTPort            int           `validate:"min=1,max=65535"`
	MQTTClientID        string        `validate:"required,max=64"`
	MQTTPublishInterval time.Duration `validate:"gt=0"`

	ArchiveEnabled        bool
	SQLitePath            string        `validate:"required_if=ArchiveEnabled true"`
	ArchiveSampleInterval time.Duration `validate:"gt=0"`
	ArchiveExportInterval time.Duration `validate:"gt=0"`
	// RetentionSchedule is the cron expression of the bucket sweep; empty
	// when disabled with RETENTION_SCHEDULE=off.
	RetentionSchedule string
}

// LoadDotEnv loads the given env files, .env by default. Missing files are
// not an error; variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := stringEnv("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(stringEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	dataRoot := stringEnv("DATA_ROOT", "/sd")

	sampleInterval, err := durationEnv("SAMPLE_INTERVAL", "1s")
	if err != nil {
		return Config{}, err
	}
	errorBackoff, err := durationEnv("ERROR_BACKOFF", "5s")
	if err != nil {
		return Config{}, err
	}

	bme280AddressStr := stringEnv("BME280_ADDRESS", "0x76")
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}
	displayEnabled, err := boolEnv("DISPLAY_ENABLED", "true")
	if err != nil {
		return Config{}, err
	}

	mqttPortStr := stringEnv("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	mqttClientID := stringEnv("MQTT_CLIENT_ID", "")
	if mqttClientID == "" {
		mqttClientID = "cloudpico-station-" + uuid.NewString()[:8]
	}
	mqttPublishInterval, err := durationEnv("MQTT_PUBLISH_INTERVAL", "10s")
	if err != nil {
		return Config{}, err
	}

	archiveEnabled, err := boolEnv("ARCHIVE_ENABLED", "true")
	if err != nil {
		return Config{}, err
	}
	archiveSampleInterval, err := durationEnv("ARCHIVE_SAMPLE_INTERVAL", "5m")
	if err != nil {
		return Config{}, err
	}
	archiveExportInterval, err := durationEnv("ARCHIVE_EXPORT_INTERVAL", "15m")
	if err != nil {
		return Config{}, err
	}

	retentionSchedule := stringEnv("RETENTION_SCHEDULE", defaultRetentionSchedule)
	if strings.EqualFold(retentionSchedule, "off") {
		retentionSchedule = ""
	}

	cfg := Config{
		AppEnv:    appEnv,
		LogLevel:  level,
		StationID: stringEnv("STATION_ID", "station"),

		DataRoot:          dataRoot,
		WiFiConfigPath:    stringEnv("WIFI_CONFIG", "wifi_config.txt"),
		DashboardTemplate: stringEnv("DASHBOARD_TEMPLATE", "index2.html"),
		DashboardAddr:     stringEnv("DASHBOARD_ADDR", ":80"),
		OpsAddr:           stringEnv("OPS_ADDR", ":9100"),

		SampleInterval: sampleInterval,
		ErrorBackoff:   errorBackoff,

		SensorDriver:   stringEnv("SENSOR_DRIVER", "bme280"),
		I2CBus:         stringEnv("I2C_BUS", ""),
		BME280Address:  uint16(bme280Address),
		DisplayEnabled: displayEnabled,
		WindPin:        stringEnv("WIND_PIN", "GPIO17"),
		StatusLEDPin:   stringEnv("STATUS_LED_PIN", ""),

		NetworkJoiner: stringEnv("NETWORK_JOINER", "nmcli"),
		WiFiInterface: stringEnv("WIFI_INTERFACE", "wlan0"),
		NTPServer:     stringEnv("NTP_SERVER", "pool.ntp.org"),

		MQTTBroker:          stringEnv("MQTT_BROKER", ""),
		MQTTPort:            mqttPort,
		MQTTClientID:        mqttClientID,
		MQTTPublishInterval: mqttPublishInterval,

		ArchiveEnabled:        archiveEnabled,
		SQLitePath:            stringEnv("SQLITE_PATH", filepath.Join(dataRoot, "station.db")),
		ArchiveSampleInterval: archiveSampleInterval,
		ArchiveExportInterval: archiveExportInterval,
		RetentionSchedule:     retentionSchedule,
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// WiFiConfig is the key=value credentials file read once at startup.
type WiFiConfig struct {
	SSID     string `validate:"required,max=32"`
	Password string `validate:"omitempty,min=8,max=63"`
}

// LoadWiFi reads SSID and PASSWORD from path. A missing file wraps
// fs.ErrNotExist.
func LoadWiFi(path string) (WiFiConfig, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return WiFiConfig{}, fmt.Errorf("read wifi config %s: %w", path, err)
	}
	wc := WiFiConfig{
		SSID:     strings.TrimSpace(values["SSID"]),
		Password: strings.TrimSpace(values["PASSWORD"]),
	}
	if err := validate.Struct(wc); err != nil {
		return WiFiConfig{}, fmt.Errorf("invalid wifi config %s: %w", path, err)
	}
	return wc, nil
}

func stringEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func durationEnv(key, def string) (time.Duration, error) {
	s := stringEnv(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func boolEnv(key, def string) (bool, error) {
	s := stringEnv(key, def)
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
