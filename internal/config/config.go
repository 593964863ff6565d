package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the relay configuration.
type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	QueueSize  int           `mapstructure:"queue_size"`
	// RateLimit call requests per party per RateWindow; 0 disables.
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	// Policy on backpressure: "kick" or "drop".
	Policy   string `mapstructure:"policy"`
	Metrics  bool   `mapstructure:"metrics"`
	LogLevel string `mapstructure:"log_level"`
}

func env() string {
	if e := os.Getenv("CONFIG_ENV"); e != "" {
		return e
	}
	return "dev"
}

func read(v *viper.Viper, fileName string) {
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "peercall-dev-secret")
	v.SetDefault("queue_size", 32)
	v.SetDefault("rate_limit", 5)
	v.SetDefault("rate_window", "10s")
	v.SetDefault("policy", "kick")
	v.SetDefault("metrics", true)
	v.SetDefault("log_level", "info")

	read(v, fmt.Sprintf("config/config.%s.yaml", env()))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Policy != "kick" && cfg.Policy != "drop" {
		return nil, fmt.Errorf("unknown backpressure policy %q", cfg.Policy)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("relay config")
	return &cfg, nil
}

// Client is the configuration of the peercall client.
type Client struct {
	RelayURL           string        `mapstructure:"relay_url"`
	ID                 string        `mapstructure:"id"`
	Name               string        `mapstructure:"name"`
	STUNServers        []string      `mapstructure:"stun"`
	Audio              bool          `mapstructure:"audio"`
	Video              bool          `mapstructure:"video"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	SignalGrace        time.Duration `mapstructure:"signal_grace"`
	GatherTimeout      time.Duration `mapstructure:"gather_timeout"`
	Backoff            time.Duration `mapstructure:"backoff"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	LogLevel           string        `mapstructure:"log_level"`
}

// ClientFlags declares the client's command-line flags.
func ClientFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("peercall", pflag.ContinueOnError)
	fs.String("relay_url", "ws://localhost:8080/api/ws/signal", "relay signaling endpoint")
	fs.String("id", "", "party id")
	fs.String("name", "", "display name")
	fs.StringSlice("stun", nil, "STUN server URLs (default: public servers)")
	fs.Bool("audio", true, "capture audio")
	fs.Bool("video", true, "capture video")
	fs.Duration("request_timeout", 30*time.Second, "how long an outgoing call rings")
	fs.Duration("connect_timeout", 30*time.Second, "how long to wait for remote media")
	fs.Duration("negotiation_timeout", 15*time.Second, "renegotiation round timeout")
	fs.Duration("signal_grace", 10*time.Second, "how long a call survives a relay disconnect")
	fs.Duration("gather_timeout", 10*time.Second, "ICE gathering timeout")
	fs.Duration("backoff", 2*time.Second, "relay reconnect backoff")
	fs.Duration("ping_period", 54*time.Second, "websocket ping period")
	fs.String("log_level", "info", "log level")
	return fs
}

// LoadClient merges config/client.<env>.yaml, PEERCALL_* environment
// variables and args, in increasing precedence.
func LoadClient(args []string) (*Client, error) {
	fs := ClientFlags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("PEERCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	read(v, fmt.Sprintf("config/client.%s.yaml", env()))

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("party id is required (--id or PEERCALL_ID)")
	}
	if !cfg.Audio && !cfg.Video {
		return nil, fmt.Errorf("at least one of audio or video must be enabled")
	}
	return &cfg, nil
}

// SetupLogging configures the global zerolog logger for a terminal.
func SetupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
