package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEStream_Parse(t *testing.T) {
	raw := strings.Join([]string{
		": keepalive comment",
		"",
		"id: 7",
		"event: debug",
		"data: {\"a\":1,",
		"data: \"b\":2}",
		"",
		"event: ignored-without-data",
		"",
		"data:{\"type\":\"heartbeat\"}\r",
		"\r",
		"data: {\"trailing\":true}",
	}, "\n")
	s := newSSEStream(io.NopCloser(strings.NewReader(raw)))

	f, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "7", f.ID)
	assert.Equal(t, "debug", f.Event)
	assert.Equal(t, "{\"a\":1,\n\"b\":2}", string(f.Data))

	f, err = s.Recv()
	require.NoError(t, err)
	assert.Empty(t, f.Event)
	assert.Equal(t, `{"type":"heartbeat"}`, string(f.Data))

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEDialer_RoundTrip(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"event_added\",\"timestamp\":\"2026-01-02T03:04:05Z\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(&SSEDialer{URL: srv.URL, Token: "secret"}, testConfig(), zerolog.Nop())
	defer c.Disconnect()

	got := make(chan InboundMessage, 4)
	c.OnMessage(func(m InboundMessage) { got <- m })

	require.NoError(t, c.Connect(context.Background()))
	for _, want := range []string{"connected", "event_added"} {
		select {
		case m := <-got:
			assert.Equal(t, want, m.Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "text/event-stream", gotAccept)
}

func TestSSEDialer_RejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := (&SSEDialer{URL: srv.URL}).Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSSEDialer_RejectsBadScheme(t *testing.T) {
	_, err := (&SSEDialer{URL: "ftp://example.com/stream"}).Dial(context.Background())
	assert.ErrorIs(t, err, ErrBadEndpoint)
}

func TestWebSocketDialer_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"debug_log_added","timestamp":"2026-01-02T03:04:05Z"}`))
		conn.ReadMessage()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(&WebSocketDialer{URL: url}, testConfig(), zerolog.Nop())
	defer c.Disconnect()

	got := make(chan InboundMessage, 1)
	c.OnMessage(func(m InboundMessage) { got <- m })
	require.NoError(t, c.Connect(context.Background()))

	select {
	case m := <-got:
		assert.Equal(t, "debug_log_added", m.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestWebSocketDialer_RejectsHTTPScheme(t *testing.T) {
	_, err := (&WebSocketDialer{URL: "http://localhost/events/ws"}).Dial(context.Background())
	assert.ErrorIs(t, err, ErrBadEndpoint)
}
