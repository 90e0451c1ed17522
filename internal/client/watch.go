package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	ws "github.com/gorilla/websocket"

	"smtparts/internal/websocket"
)

// Watch listens for change events until ctx ends or the connection
// drops. Each event invalidates the cached resource it names, then onEvent
// (if set) is called.
func (c *Client) Watch(ctx context.Context, onEvent func(websocket.Event)) error {
	url := c.baseURL + "/api/v1/ws"
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	header := http.Header{}
	if tok := c.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	dialer := ws.Dialer{HandshakeTimeout: 10 * time.Second, Jar: c.httpClient.Jar}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("websocket: %s", resp.Status)}
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var evt websocket.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("watch: %w", err)
		}
		if evt.Resource != "" {
			c.Cache.Invalidate(evt.Resource, resDashboard)
		}
		if onEvent != nil {
			onEvent(evt)
		}
	}
}
