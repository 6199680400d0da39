package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyURL(t *testing.T) {
	var none *ProxyConfig
	u, err := none.URL()
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = (&ProxyConfig{Host: "proxy", Port: 3128}).URL()
	require.NoError(t, err)
	assert.Equal(t, "http://proxy:3128", u.String())

	u, err = (&ProxyConfig{Protocol: "socks5", Host: "proxy"}).URL()
	require.NoError(t, err)
	assert.Equal(t, "socks5://proxy", u.String())

	_, err = (&ProxyConfig{Protocol: "ftp", Host: "proxy"}).URL()
	assert.Error(t, err)
}

func TestNewDialerRequiresURL(t *testing.T) {
	_, err := NewDialer(DialerConfig{})
	assert.Error(t, err)
}

func TestNewClientTLSConfigMissingCA(t *testing.T) {
	_, err := NewClientTLSConfig(&TLSConfig{CAFiles: []string{"/nonexistent/ca.pem"}})
	assert.Error(t, err)

	conf, err := NewClientTLSConfig(&TLSConfig{InsecureSkipVerify: true, ServerName: "broker"})
	require.NoError(t, err)
	assert.True(t, conf.InsecureSkipVerify)
	assert.Equal(t, "broker", conf.ServerName)
}

// brokerServer accepts one kolibri connection, pings it, echoes one text
// frame and closes with 4003.
func brokerServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{Subprotocols: []string{Subprotocol}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteControl(websocket.PingMessage, []byte("p"), time.Now().Add(time.Second)); err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, data)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(4003, "retry"), time.Now().Add(time.Second))
		conn.ReadMessage()
	}))
}

func TestWSDialerRoundTrip(t *testing.T) {
	srv := brokerServer(t)
	defer srv.Close()

	d, err := NewDialer(DialerConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, err)

	controls := make(chan ControlType, 4)
	ch, err := d.Dial(context.Background(), func(c ControlType) { controls <- c })
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.WriteText([]byte(`{"jsonrpc":"2.0"}`)))

	binary, data, err := ch.ReadMessage()
	require.NoError(t, err)
	assert.False(t, binary)
	assert.Equal(t, `{"jsonrpc":"2.0"}`, string(data))
	assert.Equal(t, ControlPing, <-controls)

	_, _, err = ch.ReadMessage()
	var ce *CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4003, ce.Code)
}

func TestWSDialerRejectsMissingSubprotocol(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			conn.ReadMessage()
			conn.Close()
		}
	}))
	defer srv.Close()

	d, err := NewDialer(DialerConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, err)
	_, err = d.Dial(context.Background(), nil)
	assert.Error(t, err)
}
