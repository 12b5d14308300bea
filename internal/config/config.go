// Package config loads the recognized options from spec §6 plus the
// ambient serving options the facade and its optional consoleapi/
// metrics surfaces need, following the teacher's pflag+viper layering
// (flags bound into viper, FLEXSDR_-prefixed environment overrides, an
// optional flex-sdr.(yaml|json|toml) config file).
package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the subset of spec.md §6's recognized options a facade
// needs to start discovery and open sessions, plus the ambient options
// (HTTP/metrics/consoleapi serving, WebRTC ICE range) that round out a
// complete deployment of this library.
type Config struct {
	// Recognized options, spec §6.
	UseTLS               bool   `mapstructure:"use-tls"`
	DiscoveryTimeoutMS   int    `mapstructure:"discovery-timeout-ms"`
	ReplyTimeoutMS       int    `mapstructure:"reply-timeout-ms"`
	TrustRootsFile       string `mapstructure:"trust-roots-file"`
	LocalBindIP          string `mapstructure:"local-bind-ip"`
	StreamOverflowPolicy string `mapstructure:"stream-overflow-policy"` // drop_oldest | block

	// Discovery.
	DiscoveryPort int `mapstructure:"discovery-port"`

	// Optional HTTP surface (metrics + consoleapi). HTTPPort == 0
	// disables serving entirely; the facade never opens a listener on
	// its own.
	HTTPPort      int  `mapstructure:"http-port"`
	EnableCOI     bool `mapstructure:"enable-coi"`
	EnableCORS    bool `mapstructure:"enable-cors"`
	EnableMetrics bool `mapstructure:"enable-metrics"`

	// WebRTC / ICE, used only by internal/consoleapi's optional
	// audio/meter/FFT publishing transport.
	ICEPortStart int      `mapstructure:"ice-port-start"`
	ICEPortEnd   int      `mapstructure:"ice-port-end"`
	StunURLs     []string `mapstructure:"stun"`
	NAT1To1IPs   []string `mapstructure:"nat-1to1-ips"`

	// Diagnostics.
	APILogFile string `mapstructure:"api-log-file"`

	// ConfigFile records which file (if any) viper actually loaded.
	ConfigFile string `mapstructure:"-"`
}

// Load parses os.Args, environment variables (prefix FLEXSDR_), and an
// optional config file into a Config, applying the same
// flag-then-env-then-file precedence and startup sanity check the
// teacher's bridge config used for its ICE port range.
func Load() (Config, error) {
	var cfg Config
	fs := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.SortFlags = true

	fs.Bool("use-tls", false, "use TLS for the command channel instead of plain TCP")
	fs.Int("discovery-timeout-ms", 10000, "staleness threshold for discovered radios, in milliseconds")
	fs.Int("reply-timeout-ms", 5000, "window before a pending command reply becomes Timeout, in milliseconds")
	fs.String("trust-roots-file", "", "PEM file of trust roots for TLS validation (system pool if empty)")
	fs.String("local-bind-ip", "", "force the UDP stream socket source IP (WAN cross-subnet)")
	fs.String("stream-overflow-policy", "block", "bounded stream queue behavior: drop_oldest or block")

	fs.Int("discovery-port", 4992, "UDP discovery broadcast port")

	fs.IntP("http-port", "p", 0, "HTTP port for /metrics and the consoleapi surface (0 disables serving)")
	fs.Bool("enable-coi", true, "enable Cross-Origin-Isolation headers (COOP/COEP) on the HTTP surface")
	fs.Bool("enable-cors", true, "enable permissive CORS headers on the HTTP surface")
	fs.Bool("enable-metrics", true, "expose /metrics when the HTTP surface is enabled")

	fs.Int("ice-port-start", 50313, "lowest UDP port for consoleapi WebRTC ICE (inclusive)")
	fs.Int("ice-port-end", 50413, "highest UDP port for consoleapi WebRTC ICE (inclusive)")
	fs.StringSlice("stun", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun.cloudflare.com:3478",
	}, "comma-separated STUN URLs for consoleapi WebRTC")
	fs.StringSlice("nat-1to1-ips", nil, "optional public IPs for NAT 1:1 mapping (e.g. 203.0.113.2,2001:db8::2)")

	fs.String("api-log-file", "", "path to record raw command/reply lines (empty disables)")
	fs.String("config", "", "path to an optional config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `flex-sdr

Usage:
  %s [flags]

Flags:
`, os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  Prefix: FLEXSDR_
  Examples:
    FLEXSDR_HTTP_PORT=8080 FLEXSDR_USE_TLS=true

Config file:
  Set FLEXSDR_CONFIG=/path/to/file.(yaml|json|toml)
  Or place flex-sdr.yaml/json/toml in the current directory
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetEnvPrefix("FLEXSDR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return cfg, fmt.Errorf("bind flags: %w", err)
	}

	cfgFile := v.GetString("config")
	if envFile := os.Getenv("FLEXSDR_CONFIG"); envFile != "" {
		cfgFile = envFile
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("flex-sdr")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err == nil {
		log.Printf("[config] using config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	log.Printf("[config] discovery=:%d http=:%d use_tls=%v reply_timeout_ms=%d overflow=%s",
		cfg.DiscoveryPort, cfg.HTTPPort, cfg.UseTLS, cfg.ReplyTimeoutMS, cfg.StreamOverflowPolicy)

	if cfg.ICEPortEnd < cfg.ICEPortStart {
		return cfg, fmt.Errorf("invalid ICE port range %d-%d", cfg.ICEPortStart, cfg.ICEPortEnd)
	}
	switch cfg.StreamOverflowPolicy {
	case "drop_oldest", "block":
	default:
		return cfg, fmt.Errorf("invalid stream-overflow-policy %q (want drop_oldest or block)", cfg.StreamOverflowPolicy)
	}

	return cfg, nil
}
