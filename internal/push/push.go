// Package push implements the push-notification registration client: it
// provisions a delivery token from the push service, mirrors it to the
// backend, and routes incoming push payloads to the in-page sink or the
// system notifier depending on focus.
//
// Every step of registration short-circuits to a degraded status instead of
// an error; this channel exists to make the app resilient, so its own
// failures must never surface to the UI.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clinicedge/clinicedge/internal/common"
	"github.com/clinicedge/clinicedge/internal/logging"
	"github.com/clinicedge/clinicedge/internal/notify"
	"github.com/clinicedge/clinicedge/internal/session"
	"github.com/sethvargo/go-retry"
)

// ServiceConfig is the fixed push-service configuration. None of these values
// are secret; they identify the application to the push service the same way
// an embedded web config would.
type ServiceConfig struct {
	Endpoint  string `json:"endpoint"`
	APIKey    string `json:"api_key"`
	ProjectID string `json:"project_id"`
	SenderID  string `json:"sender_id"`
	PublicKey string `json:"public_key"`
}

// Capabilities describes what the host environment supports.
type Capabilities struct {
	Notifications     bool
	BackgroundWorkers bool
}

// PermissionFunc asks the user for notification permission.
type PermissionFunc func(ctx context.Context) notify.Permission

// ForegroundFunc reports whether the app currently has focus.
type ForegroundFunc func() bool

// WindowFocuser focuses an existing app window or opens a new one. Used when
// the user activates a background notification.
type WindowFocuser interface {
	FocusOrOpen(ctx context.Context) error
}

// Status is the outcome of a registration attempt. The channel never errors
// out; it is either active or disabled for a reason.
type Status string

const (
	StatusInactive    Status = "inactive"
	StatusActive      Status = "active"
	StatusUnsupported Status = "unsupported"
	StatusDenied      Status = "permission_denied"
	StatusDegraded    Status = "degraded"
)

// Message is one push payload. Title and body come from the notification
// section when present, falling back to the data section.
type Message struct {
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data"`
}

// Title resolves the display title with the notification-then-data fallback.
func (m Message) Title() string {
	if m.Notification.Title != "" {
		return m.Notification.Title
	}
	if t, ok := m.Data["title"]; ok {
		return t
	}
	return "Notification"
}

// Body resolves the display body with the same precedence.
func (m Message) Body() string {
	if m.Notification.Body != "" {
		return m.Notification.Body
	}
	return m.Data["body"]
}

// Client drives the push channel for one installation.
type Client struct {
	cfg        ServiceConfig
	backendURL string
	http       *http.Client
	session    *session.Manager
	router     *notify.Router
	system     notify.SystemNotifier
	caps       Capabilities
	permission PermissionFunc
	foreground ForegroundFunc
	focuser    WindowFocuser
	log        logging.Logger

	status Status
	token  string
}

// Options carries the collaborators a Client needs.
type Options struct {
	Service    ServiceConfig
	BackendURL string
	HTTPClient *http.Client
	Session    *session.Manager
	Router     *notify.Router
	System     notify.SystemNotifier
	Caps       Capabilities
	Permission PermissionFunc
	Foreground ForegroundFunc
	Focuser    WindowFocuser
	Logger     logging.Logger
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	foreground := opts.Foreground
	if foreground == nil {
		foreground = func() bool { return true }
	}
	return &Client{
		cfg:        opts.Service,
		backendURL: opts.BackendURL,
		http:       httpClient,
		session:    opts.Session,
		router:     opts.Router,
		system:     opts.System,
		caps:       opts.Caps,
		permission: opts.Permission,
		foreground: foreground,
		focuser:    opts.Focuser,
		log:        log,
		status:     StatusInactive,
	}
}

// Status returns the channel status after the last Register call.
func (c *Client) Status() Status { return c.status }

// Token returns the provisioned push token, or "".
func (c *Client) Token() string { return c.token }

// Register runs the full registration sequence. It never returns an error:
// any failed step leaves the channel disabled with a descriptive status and
// the rest of the app untouched.
func (c *Client) Register(ctx context.Context) Status {
	c.status = c.register(ctx)
	if c.status != StatusActive {
		c.log.Warn(ctx, "push channel disabled", "status", string(c.status))
	}
	return c.status
}

func (c *Client) register(ctx context.Context) Status {
	if !c.caps.Notifications || !c.caps.BackgroundWorkers {
		return StatusUnsupported
	}

	if !c.serviceSupported(ctx) {
		return StatusUnsupported
	}

	if c.permission == nil || c.permission(ctx) != notify.PermissionGranted {
		return StatusDenied
	}

	token, err := c.provisionToken(ctx)
	if err != nil {
		c.log.Warn(ctx, "push token provisioning failed", "error", err)
		return StatusDegraded
	}
	c.token = token

	if err := c.session.SetPushToken(ctx, token); err != nil {
		c.log.Warn(ctx, "failed to persist push token", "error", err)
	}

	c.registerWithBackend(ctx, token)

	return StatusActive
}

// serviceSupported probes the push service's support endpoint.
func (c *Client) serviceSupported(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/v1/support", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// provisionToken requests a delivery token scoped to the public key and this
// installation. Transient failures are retried with exponential backoff
// before the channel gives up.
func (c *Client) provisionToken(ctx context.Context) (string, error) {
	installation, err := c.session.InstallationID(ctx)
	if err != nil {
		return "", fmt.Errorf("installation id: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"project_id":      c.cfg.ProjectID,
		"sender_id":       c.cfg.SenderID,
		"public_key":      c.cfg.PublicKey,
		"installation_id": installation,
	})
	if err != nil {
		return "", err
	}

	var token string
	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/v1/token", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			err := fmt.Errorf("token request failed: %s: %s", resp.Status, string(body))
			if resp.StatusCode >= 500 {
				return retry.RetryableError(err)
			}
			return err
		}

		var out struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		if out.Token == "" {
			return fmt.Errorf("push service returned an empty token")
		}
		token = out.Token
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// registerWithBackend mirrors the token to the backend when a bearer
// credential is present. Logged-out installations skip the call entirely so
// the endpoint is not spammed with anonymous tokens. Fire-and-forget: the
// response is ignored beyond logging.
func (c *Client) registerWithBackend(ctx context.Context, token string) {
	bearer, err := c.session.BearerToken(ctx)
	if err != nil || bearer == "" {
		c.log.Debug(ctx, "no session credential, skipping backend token registration")
		return
	}

	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.backendURL+common.RegisterTokenPath, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn(ctx, "backend token registration failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.log.Warn(ctx, "backend token registration rejected", "status", resp.Status)
	}
}
