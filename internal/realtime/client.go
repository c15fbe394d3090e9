// Package realtime maintains the persistent socket to the backend and turns
// server-pushed notification events into in-page and system notifications.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/clinicedge/clinicedge/internal/common"
	"github.com/clinicedge/clinicedge/internal/logging"
	"github.com/clinicedge/clinicedge/internal/notify"
	"github.com/clinicedge/clinicedge/internal/session"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
)

// DefaultPath is the fixed realtime endpoint path.
const DefaultPath = "/realtime"

// frame is the wire envelope for every socket message, in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// authPayload is attached at connection time: the bearer credential, when
// the session has one.
type authPayload struct {
	Token string `json:"token"`
}

// notificationPayload is the body of a notification:new event. All fields are
// optional; a missing type defaults to informational.
type notificationPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Options carries the collaborators a Client needs.
type Options struct {
	// Endpoint is the ws:// or wss:// URL including DefaultPath.
	Endpoint   string
	Session    *session.Manager
	Router     *notify.Router
	System     notify.SystemNotifier
	Permission func() notify.Permission
	Logger     logging.Logger
	Dialer     *websocket.Dialer
}

// Client owns one persistent socket per process.
//
// Contract:
//   - Init is idempotent: a live connection is reused, not replaced.
//   - Conn returns the live connection or nil.
//   - connection errors are logged and absorbed; the read loop reconnects
//     with backoff and gives up quietly when the backend stays unreachable.
type Client struct {
	opts Options
	log  logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Permission == nil {
		opts.Permission = func() notify.Permission { return notify.PermissionDefault }
	}
	return &Client{opts: opts, log: log}
}

// Init establishes the connection unless one is already live. The returned
// error is informational; callers may ignore it, the channel degrades on its
// own.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.log.Error(ctx, "socket connection failed", "error", err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(loopCtx, conn)
	return nil
}

// Conn returns the live connection, or nil when disconnected.
func (c *Client) Conn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Close tears the connection down and stops the read loop.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.Endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	// Connection-time auth: the current bearer, or an empty token while
	// logged out. The server decides what anonymous connections may see.
	token, err := c.opts.Session.BearerToken(ctx)
	if err != nil {
		token = ""
	}
	auth, err := json.Marshal(authPayload{Token: token})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(frame{Event: "auth", Data: auth}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// readLoop consumes frames until the connection dies, then tries to
// re-establish it with exponential backoff. When reconnection gives up the
// channel stays silently disabled; the push channel is unaffected.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}

			c.log.Warn(ctx, "socket read failed, reconnecting", "error", err)
			next, ok := c.reconnect(ctx)
			if !ok {
				c.mu.Lock()
				c.conn = nil
				c.mu.Unlock()
				return
			}
			conn = next
			continue
		}
		c.dispatch(ctx, f)
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	var conn *websocket.Conn
	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		next, err := c.dial(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		conn = next
		return nil
	})
	if err != nil {
		c.log.Error(ctx, "socket reconnection abandoned", "error", err)
		return nil, false
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, true
}

func (c *Client) dispatch(ctx context.Context, f frame) {
	if f.Event != common.NotificationEventName {
		return
	}

	var payload notificationPayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		c.log.Warn(ctx, "malformed notification event", "error", err)
		return
	}
	if payload.Type == "" {
		payload.Type = notify.TypeInfo
	}

	c.opts.Router.Publish(ctx, notify.Event{
		Type:    payload.Type,
		Title:   payload.Title,
		Message: payload.Message,
	})

	// The socket path raises a system notification in the foreground as well,
	// but only when permission was already granted elsewhere; it never prompts.
	if c.opts.System != nil && c.opts.Permission() == notify.PermissionGranted {
		if err := c.opts.System.Notify(ctx, payload.Title, payload.Message); err != nil {
			c.log.Warn(ctx, "system notification failed", "error", err)
		}
	}
}
