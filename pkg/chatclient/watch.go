package chatclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"scripturechat/pkg/transcript"
)

// Watch opens the session stream. The returned channel yields snapshots and
// status lines and closes when ctx is done or the server hangs up.
func (c *Client) Watch(ctx context.Context, sessionID string) (<-chan transcript.Update, error) {
	wsURL, err := c.streamURL(sessionID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	c.addAuthHeaders(header)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return nil, decodeAPIError(resp)
		}
		return nil, err
	}

	out := make(chan transcript.Update, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var u transcript.Update
			if err := conn.ReadJSON(&u); err != nil {
				if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug("chat stream closed", "session_id", sessionID, "err", err)
				}
				return
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) streamURL(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL + "/sessions/" + url.PathEscape(sessionID) + "/stream")
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	return u.String(), nil
}
