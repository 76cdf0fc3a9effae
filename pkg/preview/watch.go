package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Watch connects to a preview server's /ws/stats and calls fn for every stats
// update until ctx is done or the connection drops. addr is host:port or a
// ws:// URL.
func Watch(ctx context.Context, addr string, fn func(FrameStats)) error {
	u, err := statsURL(addr)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("preview: dial %s (status %d): %w", u, resp.StatusCode, err)
		}
		return fmt.Errorf("preview: dial %s: %w", u, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("preview: read: %w", err)
		}

		var st FrameStats
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		fn(st)
	}
}

// Toggle asks the server on an open stats connection to flip processing.
func Toggle(ctx context.Context, addr string) error {
	u, err := statsURL(addr)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("preview: dial %s: %w", u, err)
	}
	defer conn.Close()
	return conn.WriteMessage(websocket.TextMessage, []byte("toggle"))
}

func statsURL(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("preview: empty address")
	}
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		u = &url.URL{Scheme: "ws", Host: addr}
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("preview: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws/stats"
	}
	return u.String(), nil
}
