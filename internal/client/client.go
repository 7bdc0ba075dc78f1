// Package client is a thin typed wrapper over the daemon's unix-socket HTTP
// API, shared by beaconctl and anything else that talks to a running daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pvieira/beacon/internal/delivery"
	"github.com/pvieira/beacon/internal/quality"
)

// baseURL is a placeholder host; routing happens over the unix socket.
const baseURL = "http://beacond"

// Client talks to one session daemon.
type Client struct {
	http       *http.Client
	socketPath string
}

// New returns a client for the daemon listening on socketPath. No connection
// is made until the first call.
func New(socketPath string) *Client {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{DialContext: dial},
			Timeout:   15 * time.Second,
		},
		socketPath: socketPath,
	}
}

// SendResult is the daemon's answer to a message submission.
type SendResult struct {
	ID      string `json:"id"`
	Flagged bool   `json:"flagged"`
}

// Status mirrors the daemon's status report.
type Status struct {
	PID           int           `json:"pid"`
	StartedAt     time.Time     `json:"started_at"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	LocalID       string        `json:"local_id"`
	Peers         int           `json:"peers"`
	Connected     bool          `json:"connected"`
	Quality       quality.Level `json:"quality"`
	Messages      int           `json:"messages"`
	DroppedEvents uint64        `json:"dropped_events"`
}

// Quality mirrors the daemon's connectivity report.
type Quality struct {
	Level     quality.Level `json:"level"`
	Peers     int           `json:"peers"`
	Connected bool          `json:"connected"`
}

// Event is one entry from the daemon's event stream. Payload stays raw so
// callers can print or decode it as they see fit.
type Event struct {
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) Send(ctx context.Context, text string, emergency bool) (SendResult, error) {
	var out SendResult
	err := c.do(ctx, http.MethodPost, "/v1/messages",
		map[string]any{"text": text, "emergency": emergency}, &out)
	return out, err
}

func (c *Client) Messages(ctx context.Context, limit int) ([]delivery.Message, error) {
	path := "/v1/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []delivery.Message
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Message(ctx context.Context, id string) (delivery.Message, error) {
	var out delivery.Message
	err := c.do(ctx, http.MethodGet, "/v1/messages/"+id, nil, &out)
	return out, err
}

func (c *Client) Retry(ctx context.Context, id string) (delivery.Message, error) {
	var out delivery.Message
	err := c.do(ctx, http.MethodPost, "/v1/messages/"+id+"/retry", nil, &out)
	return out, err
}

func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/messages/"+id+"/read", nil, nil)
}

func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/messages/"+id+"/cancel", nil, &out)
	return out.Cancelled, err
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out, err
}

func (c *Client) Quality(ctx context.Context) (Quality, error) {
	var out Quality
	err := c.do(ctx, http.MethodGet, "/v1/quality", nil, &out)
	return out, err
}

// Watch opens the daemon's websocket event stream. The returned channel is
// closed when the stream ends or ctx is cancelled.
func (c *Client) Watch(ctx context.Context) (<-chan Event, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		},
	}
	conn, _, err := dialer.DialContext(ctx, "ws://beacond/v1/events", nil)
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	events := make(chan Event, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			var evt Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var echoErr struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &echoErr) == nil && echoErr.Message != "" {
			return fmt.Errorf("daemon: %s", echoErr.Message)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
