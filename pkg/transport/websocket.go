package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Subprotocol is the WebSocket subprotocol spoken by Kolibri brokers.
const Subprotocol = "kolibri"

// Dialer defaults.
const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultMaxPayload       = 1 << 20
)

// ProxyConfig selects an outbound proxy.
type ProxyConfig struct {
	// Protocol is "http", "https" or "socks5".
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// URL returns the proxy URL, or nil when no proxy host is set.
func (p *ProxyConfig) URL() (*url.URL, error) {
	if p == nil || p.Host == "" {
		return nil, nil
	}
	scheme := p.Protocol
	if scheme == "" {
		scheme = "http"
	}
	switch scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", scheme)
	}
	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	return &url.URL{Scheme: scheme, Host: host}, nil
}

// DialerConfig configures a WSDialer.
type DialerConfig struct {
	// URL is the broker endpoint, e.g. wss://broker:9000/.
	URL string

	TLS   *TLSConfig
	Proxy *ProxyConfig

	// HandshakeTimeout bounds the opening handshake (default: 30s).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write (default: 10s).
	WriteTimeout time.Duration

	// MaxPayload caps inbound frames in bytes (default: 1 MiB).
	MaxPayload int64
}

// WSDialer dials brokers with gorilla/websocket.
type WSDialer struct {
	url          string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	maxPayload   int64
}

// NewDialer validates cfg and creates a dialer.
func NewDialer(cfg DialerConfig) (*WSDialer, error) {
	if cfg.URL == "" {
		return nil, errors.New("broker URL is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}

	tlsConf, err := NewClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	d := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		TLSClientConfig:  tlsConf,
		Subprotocols:     []string{Subprotocol},
		Proxy:            http.ProxyFromEnvironment,
	}
	proxyURL, err := cfg.Proxy.URL()
	if err != nil {
		return nil, err
	}
	if proxyURL != nil {
		d.Proxy = http.ProxyURL(proxyURL)
	}

	return &WSDialer{
		url:          cfg.URL,
		dialer:       d,
		writeTimeout: cfg.WriteTimeout,
		maxPayload:   cfg.MaxPayload,
	}, nil
}

// URL returns the broker endpoint.
func (d *WSDialer) URL() string {
	return d.url
}

// Dial opens a connection to the broker.
func (d *WSDialer) Dial(ctx context.Context, onControl func(ControlType)) (Channel, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", d.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	if conn.Subprotocol() != Subprotocol {
		conn.Close()
		return nil, fmt.Errorf("dial %s: broker did not accept subprotocol %q", d.url, Subprotocol)
	}

	ch := &wsChannel{conn: conn, writeTimeout: d.writeTimeout}
	conn.SetReadLimit(d.maxPayload)

	// Replacing the ping handler disables gorilla's automatic pong reply,
	// so the pong is written here.
	conn.SetPingHandler(func(appData string) error {
		if onControl != nil {
			onControl(ControlPing)
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(d.writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		if onControl != nil {
			onControl(ControlPong)
		}
		return nil
	})

	return ch, nil
}

// wsChannel adapts a gorilla connection to Channel.
type wsChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsChannel) ReadMessage() (bool, []byte, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return false, nil, toCloseError(err)
	}
	return mt == websocket.BinaryMessage, data, nil
}

func (c *wsChannel) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) WriteClose(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// toCloseError maps a read error to a close code. Anything other than a
// received close frame is an abnormal closure.
func toCloseError(err error) *CloseError {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNoStatusReceived {
			return &CloseError{Code: wire.CloseNormal, Text: ce.Text}
		}
		return &CloseError{Code: ce.Code, Text: ce.Text}
	}
	return &CloseError{Code: wire.CloseAbnormal, Text: err.Error()}
}
