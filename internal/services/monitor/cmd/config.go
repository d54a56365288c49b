package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	ClientID   string `yaml:"client_id"`
	DeviceID   string `yaml:"device_id"` // homeassistant/<device_id>/state
	DedupTTLMs int    `yaml:"dedup_ttl_ms"`
}

type BreakerConfig struct {
	Fails      int `yaml:"fails"`
	OpenMs     int `yaml:"open_ms"`
	IntervalMs int `yaml:"interval_ms"`
}

type Config struct {
	BaseURL   string        `yaml:"base_url"` // device root, e.g. http://192.168.4.1
	Host      string        `yaml:"host"`     // label shown while connected, default the URL host
	TimeoutMs int           `yaml:"timeout_ms"`
	HTTPAddr  string        `yaml:"http_addr"` // /metrics e /healthz, vuoto = disabilitato
	LogFile   string        `yaml:"log_file"`
	Plain     bool          `yaml:"plain"`
	Breaker   BreakerConfig `yaml:"breaker"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func defaultConfig() Config {
	return Config{
		BaseURL:   "http://192.168.4.1",
		TimeoutMs: 5000,
		HTTPAddr:  ":9108",
		Breaker:   BreakerConfig{Fails: 3, OpenMs: 10000},
		MQTT: MQTTConfig{
			Host:       "localhost",
			Port:       1883,
			ClientID:   "pumpwatch",
			DeviceID:   "pump",
			DedupTTLMs: 60000,
		},
	}
}

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

// errHelp: --help was requested, usage already printed.
var errHelp = errors.New("help requested")

// loadConfig: defaults, then the YAML file, then env, then explicit flags.
func loadConfig(args []string) (Config, error) {
	cfg := defaultConfig()

	fs := pflag.NewFlagSet("pumpwatch", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", getenv("PUMPWATCH_CONFIG", ""), "YAML config file")
	baseURL := fs.String("url", "", "device base URL (events, command, reboot)")
	host := fs.String("host", "", "label shown while connected (default: URL host)")
	timeoutMs := fs.Int("timeout-ms", 0, "command/reboot request timeout in ms")
	httpAddr := fs.String("http-addr", "", "listen address for /metrics and /healthz (\"-\" disables)")
	logFile := fs.String("log-file", "", "write logs to this file (rotated)")
	plain := fs.Bool("plain", false, "print one line per update instead of the terminal UI")
	mqttEnabled := fs.Bool("mqtt", false, "enable the MQTT bridge")
	mqttHost := fs.String("mqtt-host", "", "MQTT broker host")
	mqttPort := fs.Int("mqtt-port", 0, "MQTT broker port")
	deviceID := fs.String("device-id", "", "device id used in MQTT topics")
	fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return cfg, errHelp
		}
		return cfg, err
	}
	if help, _ := fs.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage of pumpwatch:\n%s", fs.FlagUsages())
		return cfg, errHelp
	}

	if *configPath != "" {
		if err := loadFile(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)

	if fs.Changed("url") {
		cfg.BaseURL = *baseURL
	}
	if fs.Changed("host") {
		cfg.Host = *host
	}
	if fs.Changed("timeout-ms") {
		cfg.TimeoutMs = *timeoutMs
	}
	if fs.Changed("http-addr") {
		cfg.HTTPAddr = *httpAddr
	}
	if fs.Changed("log-file") {
		cfg.LogFile = *logFile
	}
	if fs.Changed("plain") {
		cfg.Plain = *plain
	}
	if fs.Changed("mqtt") {
		cfg.MQTT.Enabled = *mqttEnabled
	}
	if fs.Changed("mqtt-host") {
		cfg.MQTT.Host = *mqttHost
	}
	if fs.Changed("mqtt-port") {
		cfg.MQTT.Port = *mqttPort
	}
	if fs.Changed("device-id") {
		cfg.MQTT.DeviceID = *deviceID
	}
	if cfg.HTTPAddr == "-" {
		cfg.HTTPAddr = ""
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.BaseURL = getenv("PUMPWATCH_BASE_URL", cfg.BaseURL)
	cfg.Host = getenv("PUMPWATCH_HOST", cfg.Host)
	cfg.TimeoutMs = getenvInt("PUMPWATCH_TIMEOUT_MS", cfg.TimeoutMs)
	cfg.HTTPAddr = getenv("PUMPWATCH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogFile = getenv("PUMPWATCH_LOG_FILE", cfg.LogFile)
	cfg.Plain = getenvBool("PUMPWATCH_PLAIN", cfg.Plain)

	cfg.Breaker.Fails = getenvInt("CB_DEVICE_FAILS", cfg.Breaker.Fails)
	cfg.Breaker.OpenMs = getenvInt("CB_DEVICE_OPEN_MS", cfg.Breaker.OpenMs)
	cfg.Breaker.IntervalMs = getenvInt("CB_DEVICE_INTERVAL_MS", cfg.Breaker.IntervalMs)

	cfg.MQTT.Enabled = getenvBool("MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.Host = getenv("MQTT_HOST", cfg.MQTT.Host)
	cfg.MQTT.Port = getenvInt("MQTT_PORT", cfg.MQTT.Port)
	cfg.MQTT.User = getenv("MQTT_USER", cfg.MQTT.User)
	cfg.MQTT.Password = getenv("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.ClientID = getenv("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.DeviceID = getenv("DEVICE_ID", cfg.MQTT.DeviceID)
	cfg.MQTT.DedupTTLMs = getenvInt("MQTT_DEDUP_TTL_MS", cfg.MQTT.DedupTTLMs)
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url %q: %w", c.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base url %q: want http(s)://host", c.BaseURL)
	}
	if c.Host == "" {
		c.Host = u.Hostname()
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMs)
	}
	if c.MQTT.Enabled {
		if c.MQTT.DeviceID == "" {
			return errors.New("mqtt enabled but device_id is empty")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("invalid mqtt port %d", c.MQTT.Port)
		}
	}
	return nil
}
