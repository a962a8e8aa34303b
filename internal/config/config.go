package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"camfeed/native/internal/domain"
)

const envPrefix = "CAMFEED"

// DefaultSTUNURLs are the public discovery servers used when none are configured.
var DefaultSTUNURLs = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// Config holds the application configuration.
type Config struct {
	SignalURL        string        `mapstructure:"signal_url"`
	Source           string        `mapstructure:"source"`
	STUNURLs         string        `mapstructure:"stun_urls"`
	TURNURL          string        `mapstructure:"turn_url"`
	TURNUsername     string        `mapstructure:"turn_username"`
	TURNCredential   string        `mapstructure:"turn_credential"`
	RecordDir        string        `mapstructure:"record_dir"`
	LogLevel         string        `mapstructure:"log_level"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	FilterLoopback   bool          `mapstructure:"filter_loopback"`

	ICEServers []domain.ICEServer `mapstructure:"-"`
}

// ErrHelp is returned when -h/--help was requested.
var ErrHelp = pflag.ErrHelp

// Load reads configuration from a .env file (if present), an optional YAML
// file, CAMFEED_* environment variables and command line flags, in
// increasing order of precedence.
func Load(args []string) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("camfeed", pflag.ContinueOnError)
	fs.String("config", "", "optional YAML config file")
	fs.String("signal-url", "", "signaling WebSocket endpoint")
	fs.String("source", "", "media source to start immediately (camera, file, ...)")
	fs.String("stun-urls", "", "comma separated STUN server URLs")
	fs.String("turn-url", "", "TURN server URL")
	fs.String("turn-username", "", "TURN username")
	fs.String("turn-credential", "", "TURN credential")
	fs.String("record-dir", "", "directory for recorded video")
	fs.String("log-level", "", "trace, debug, info, warn or error")
	fs.Bool("filter-loopback", false, "do not advertise loopback ICE candidates")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("signal_url", "ws://localhost:8000/ws")
	v.SetDefault("source", "")
	v.SetDefault("stun_urls", strings.Join(DefaultSTUNURLs, ","))
	v.SetDefault("turn_url", "")
	v.SetDefault("turn_username", "")
	v.SetDefault("turn_credential", "")
	v.SetDefault("record_dir", ".")
	v.SetDefault("log_level", "info")
	v.SetDefault("ping_interval", "20s")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("filter_loopback", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file, _ := fs.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	// Only explicitly set flags override lower layers.
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ICEServers = cfg.iceServers()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	u, err := url.Parse(c.SignalURL)
	if err != nil {
		return fmt.Errorf("signal_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("signal_url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("signal_url: missing host")
	}
	if c.TURNURL != "" && (c.TURNUsername == "" || c.TURNCredential == "") {
		return fmt.Errorf("turn_url requires turn_username and turn_credential")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive")
	}
	return nil
}

func (c *Config) iceServers() []domain.ICEServer {
	var servers []domain.ICEServer
	if stun := splitList(c.STUNURLs); len(stun) > 0 {
		servers = append(servers, domain.ICEServer{URLs: stun})
	}
	if turn := splitList(c.TURNURL); len(turn) > 0 {
		servers = append(servers, domain.ICEServer{
			URLs:       turn,
			Username:   c.TURNUsername,
			Credential: c.TURNCredential,
		})
	}
	return servers
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
