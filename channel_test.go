package convai

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/siwaht/convai/audio"
	"github.com/siwaht/convai/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketPair dials a real websocket against an in-process server and
// returns both ends.
func socketPair(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &m))
	return m
}

func TestOutboundChannelSendControl(t *testing.T) {
	client, server := socketPair(t)
	ch := NewOutboundChannel(shared.NewNopLogger(), client)
	defer ch.Close(websocket.CloseNormalClosure)

	ch.SendControl(newInitiationEnvelope())
	frame := readFrame(t, server)
	assert.Equal(t, "conversation_initiation_client_data", frame["type"])
}

func TestOutboundChannelSendAudioFrame(t *testing.T) {
	client, server := socketPair(t)
	ch := NewOutboundChannel(shared.NewNopLogger(), client)
	defer ch.Close(websocket.CloseNormalClosure)

	samples := []int16{100, -100, 0, 32767}
	ch.SendAudioFrame(samples)

	frame := readFrame(t, server)
	b64, ok := frame["user_audio_chunk"].(string)
	require.True(t, ok)
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	assert.Equal(t, samples, audio.BytesToSamples(raw))
}

func TestOutboundChannelPreservesOrder(t *testing.T) {
	client, server := socketPair(t)
	ch := NewOutboundChannel(shared.NewNopLogger(), client)
	defer ch.Close(websocket.CloseNormalClosure)

	ch.SendControl(newInitiationEnvelope())
	ch.SendAudioFrame([]int16{1})
	ch.SendControl(newPongEnvelope(1))

	first := readFrame(t, server)
	assert.Equal(t, "conversation_initiation_client_data", first["type"])
	second := readFrame(t, server)
	assert.Contains(t, second, "user_audio_chunk")
	third := readFrame(t, server)
	assert.Equal(t, "pong_event", third["type"])
}

func TestOutboundChannelDropsAfterClose(t *testing.T) {
	client, server := socketPair(t)
	ch := NewOutboundChannel(shared.NewNopLogger(), client)

	ch.Close(websocket.CloseNormalClosure)
	assert.False(t, ch.Open())
	ch.SendControl(newInitiationEnvelope())
	ch.SendAudioFrame([]int16{1, 2})

	// The server sees the close handshake and nothing after it.
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := server.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestOutboundChannelCloseIdempotent(t *testing.T) {
	client, _ := socketPair(t)
	ch := NewOutboundChannel(shared.NewNopLogger(), client)
	ch.Close(websocket.CloseNormalClosure)
	ch.Close(websocket.CloseGoingAway)
	assert.False(t, ch.Open())
}
