package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer opens a WebSocket stream; every text or binary message is
// one frame.
type WebSocketDialer struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Stream, error) {
	u, err := url.Parse(d.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("%w: %q", ErrBadEndpoint, d.URL)
	}

	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, 512))
			if readErr == nil && len(body) > 0 {
				return nil, fmt.Errorf("%w: %s %s", err, resp.Status, strings.TrimSpace(string(body)))
			}
			return nil, fmt.Errorf("%w: %s", err, resp.Status)
		}
		return nil, err
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Recv() (Frame, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return Frame{Data: data}, nil
		}
	}
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
