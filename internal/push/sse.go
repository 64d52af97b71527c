package push

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SSEDialer opens text/event-stream connections.
type SSEDialer struct {
	URL    string
	Token  string
	Client *http.Client // must not set a Timeout; nil uses a streaming-safe default
}

func (d *SSEDialer) Dial(ctx context.Context) (Stream, error) {
	u, err := url.Parse(d.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrBadEndpoint, d.URL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEndpoint, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	client := d.Client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %d %s", u.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return newSSEStream(resp.Body), nil
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReader(body)}
}

// Recv reads lines until a blank line completes an event that carries data.
// Events without data lines and comment lines are skipped.
func (s *sseStream) Recv() (Frame, error) {
	var (
		frame   Frame
		data    bytes.Buffer
		hasData bool
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			// An unterminated trailing event is discarded.
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				frame.Data = data.Bytes()
				return frame, nil
			}
			frame = Frame{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			frame.Event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			frame.ID = value
		}
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
