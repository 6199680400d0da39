package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kolibri-protocol/kolibri-go/pkg/connection"
	"github.com/kolibri-protocol/kolibri-go/pkg/interaction"
	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/subscription"
	"github.com/kolibri-protocol/kolibri-go/pkg/transport"
)

// Configuration defaults, matching the broker node of the original
// Kolibri consumer.
const (
	DefaultScheme                  = "wss"
	DefaultPath                    = "/"
	DefaultConnectRetries          = 100
	DefaultConnectMinRetryInterval = 2 * time.Second
	DefaultConnectMaxRetryInterval = 60 * time.Second
	DefaultKeepAliveInterval       = 60 * time.Second
	DefaultKeepAliveTimeout        = 30 * time.Second
	DefaultRequestTimeout          = 30 * time.Second
	DefaultRequestRetries          = 2
	DefaultMaxPayload              = 1 << 20
)

// Config configures a Session. It is usually loaded from YAML.
type Config struct {
	// Scheme is "wss" (default) or "ws".
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Path   string `yaml:"path"`

	// Project defaults to the first DNS label of Host. It must be set
	// explicitly when Host is an IP address.
	Project string `yaml:"project"`

	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// ClientID is presented at login. When empty, the id persisted by an
	// earlier login is used.
	ClientID string `yaml:"client_id"`

	Proxy *transport.ProxyConfig `yaml:"proxy"`
	TLS   transport.TLSConfig    `yaml:"tls"`

	// ConnectRetries bounds redials of one connection attempt.
	ConnectRetries          int           `yaml:"connect_retries"`
	ConnectMinRetryInterval time.Duration `yaml:"connect_min_retry_interval"`
	ConnectMaxRetryInterval time.Duration `yaml:"connect_max_retry_interval"`

	// ReconnectRetries bounds reconnects after a connection was lost
	// without a successful login in between. Negative means unlimited.
	ReconnectRetries int `yaml:"reconnect_retries"`

	// KeepAliveInterval is sent at login as the broker ping interval.
	// Zero disables the watchdog.
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	KeepAliveTimeout  time.Duration `yaml:"keepalive_timeout"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	RequestRetries int           `yaml:"request_retries"`

	// MaxPayload caps inbound frames in bytes.
	MaxPayload int64 `yaml:"max_payload"`

	// MaxSubscriptions bounds the number of tracked paths.
	MaxSubscriptions int `yaml:"max_subscriptions"`

	// WriteFailureStatus reports failed writes as a Warning to listeners
	// bound to the path.
	WriteFailureStatus bool `yaml:"write_failure_status"`

	// TraceFile is a protocol trace written by cmd/kolibri-client.
	TraceFile string `yaml:"trace_file"`

	// StateFile stores the client id assigned at login.
	StateFile string `yaml:"state_file"`

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns a configuration with all tunables set to their
// defaults. Host and credentials are left empty.
func DefaultConfig() Config {
	return Config{
		Scheme:                  DefaultScheme,
		Path:                    DefaultPath,
		ConnectRetries:          DefaultConnectRetries,
		ConnectMinRetryInterval: DefaultConnectMinRetryInterval,
		ConnectMaxRetryInterval: DefaultConnectMaxRetryInterval,
		ReconnectRetries:        connection.Unlimited,
		KeepAliveInterval:       DefaultKeepAliveInterval,
		KeepAliveTimeout:        DefaultKeepAliveTimeout,
		RequestTimeout:          DefaultRequestTimeout,
		RequestRetries:          DefaultRequestRetries,
		MaxPayload:              DefaultMaxPayload,
		MaxSubscriptions:        subscription.DefaultMaxSubscriptions,
		WriteFailureStatus:      true,
		TLS:                     transport.TLSConfig{InsecureSkipVerify: true},
	}
}

// ConfigError reports a configuration file problem.
type ConfigError struct {
	File    string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Override adjusts a decoded configuration before it is validated.
type Override func(*Config)

// ParseConfig decodes YAML on top of DefaultConfig, applies the overrides
// and validates the result.
func ParseConfig(data []byte, overrides ...Override) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigError{Message: "failed to parse YAML", Cause: err}
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &ConfigError{Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string, overrides ...Override) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := ParseConfig(data, overrides...)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.File = path
		}
		return Config{}, err
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// Validate checks that the configuration can be used to connect.
func (c *Config) Validate() error {
	if c.Host == "" {
		return invalid("host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return invalid("port %d out of range", c.Port)
	}
	switch c.Scheme {
	case "", "ws", "wss":
	default:
		return invalid("unsupported scheme %q", c.Scheme)
	}
	if c.ProjectName() == "" {
		return invalid("project is required for host %q", c.Host)
	}
	if c.User == "" {
		return invalid("user is required")
	}
	if c.ConnectMinRetryInterval < 0 || c.ConnectMaxRetryInterval < 0 {
		return invalid("negative retry interval")
	}
	if c.ConnectMaxRetryInterval > 0 && c.ConnectMaxRetryInterval < c.ConnectMinRetryInterval {
		return invalid("connect_max_retry_interval below connect_min_retry_interval")
	}
	if c.KeepAliveInterval < 0 || c.KeepAliveTimeout < 0 {
		return invalid("negative keepalive setting")
	}
	if c.RequestRetries < 0 {
		return invalid("request_retries must not be negative")
	}
	if _, err := c.Proxy.URL(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// URL returns the broker endpoint, e.g. wss://plant.example.com:9000/.
func (c *Config) URL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	host := c.Host
	if c.Port > 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: path}
	return u.String()
}

// ProjectName returns the project used for login hashing.
func (c *Config) ProjectName() string {
	if c.Project != "" {
		return c.Project
	}
	if c.Host == "" || net.ParseIP(c.Host) != nil {
		return ""
	}
	label, _, _ := strings.Cut(c.Host, ".")
	return label
}

func (c *Config) backoff() connection.BackoffConfig {
	b := connection.DefaultBackoffConfig()
	if c.ConnectMinRetryInterval > 0 {
		b.Initial = c.ConnectMinRetryInterval
	}
	if c.ConnectMaxRetryInterval > 0 {
		b.Max = c.ConnectMaxRetryInterval
	}
	return b
}

// DialerConfig returns the WebSocket dialer settings.
func (c *Config) DialerConfig() transport.DialerConfig {
	tlsConf := c.TLS
	return transport.DialerConfig{
		URL:        c.URL(),
		TLS:        &tlsConf,
		Proxy:      c.Proxy,
		MaxPayload: c.MaxPayload,
	}
}

// TransportConfig returns the transport session settings.
func (c *Config) TransportConfig(logger *slog.Logger, rec *log.Recorder) transport.Config {
	tc := transport.DefaultConfig()
	tc.ConnectRetries = c.ConnectRetries
	tc.Backoff = c.backoff()
	tc.KeepAlive = transport.KeepAliveConfig{
		Interval: c.KeepAliveInterval,
		Timeout:  c.KeepAliveTimeout,
		Margin:   transport.KeepAliveMargin,
	}
	tc.Logger = logger
	tc.Recorder = rec
	return tc
}

// LedgerConfig returns the request ledger settings.
func (c *Config) LedgerConfig(logger *slog.Logger, rec *log.Recorder, now func() time.Time) interaction.LedgerConfig {
	return interaction.LedgerConfig{
		Timeout:    c.RequestTimeout,
		MaxRetries: c.RequestRetries,
		Logger:     logger,
		Recorder:   rec,
		Now:        now,
	}
}

// ReconnectConfig returns the session reconnect schedule.
func (c *Config) ReconnectConfig() connection.RetrierConfig {
	return connection.RetrierConfig{
		Backoff:    c.backoff(),
		MaxRetries: c.ReconnectRetries,
	}
}

// seconds converts d to whole seconds for the login params.
func seconds(d time.Duration) int {
	return int(d / time.Second)
}
