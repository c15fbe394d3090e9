package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/clinicedge/clinicedge/internal/kv"
	"github.com/clinicedge/clinicedge/internal/notify"
	"github.com/clinicedge/clinicedge/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushService struct {
	srv         *httptest.Server
	tokenCalls  atomic.Int64
	supported   atomic.Bool
	failToken   atomic.Bool
	issuedToken string
}

func newPushService(t *testing.T) *pushService {
	t.Helper()
	ps := &pushService{issuedToken: "tok-123"}
	ps.supported.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/support", func(w http.ResponseWriter, r *http.Request) {
		if !ps.supported.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/token", func(w http.ResponseWriter, r *http.Request) {
		ps.tokenCalls.Add(1)
		if ps.failToken.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["installation_id"])
		assert.Equal(t, "vapid-pub", body["public_key"])
		_ = json.NewEncoder(w).Encode(map[string]string{"token": ps.issuedToken})
	})

	ps.srv = httptest.NewServer(mux)
	t.Cleanup(ps.srv.Close)
	return ps
}

type backend struct {
	srv       *httptest.Server
	registers atomic.Int64
	lastAuth  atomic.Value
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/register-token", func(w http.ResponseWriter, r *http.Request) {
		b.registers.Add(1)
		b.lastAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func granted(context.Context) notify.Permission { return notify.PermissionGranted }
func denied(context.Context) notify.Permission  { return notify.PermissionDenied }

func newTestClient(t *testing.T, ps *pushService, b *backend, opts func(*Options)) (*Client, *session.Manager) {
	t.Helper()
	sess := session.NewManager(kv.NewMemorySlot())
	o := Options{
		Service: ServiceConfig{
			Endpoint:  ps.srv.URL,
			APIKey:    "api-key",
			ProjectID: "clinic-app",
			SenderID:  "42",
			PublicKey: "vapid-pub",
		},
		BackendURL: b.srv.URL,
		Session:    sess,
		Router:     notify.NewRouter(nil),
		Caps:       Capabilities{Notifications: true, BackgroundWorkers: true},
		Permission: granted,
	}
	if opts != nil {
		opts(&o)
	}
	return NewClient(o), sess
}

func TestRegister_HappyPathPersistsAndMirrorsToken(t *testing.T) {
	ps := newPushService(t)
	b := newBackend(t)
	ctx := context.Background()

	c, sess := newTestClient(t, ps, b, nil)
	require.NoError(t, sess.SetBearerToken(ctx, "bearer-1"))

	status := c.Register(ctx)
	assert.Equal(t, StatusActive, status)
	assert.Equal(t, "tok-123", c.Token())

	stored, err := sess.PushToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", stored)

	assert.Equal(t, int64(1), b.registers.Load())
	assert.Equal(t, "Bearer bearer-1", b.lastAuth.Load())
}

func TestRegister_LoggedOutSkipsBackend(t *testing.T) {
	ps := newPushService(t)
	b := newBackend(t)

	c, _ := newTestClient(t, ps, b, nil)

	status := c.Register(context.Background())
	assert.Equal(t, StatusActive, status)
	assert.Equal(t, int64(0), b.registers.Load(), "backend must not be called while logged out")
}

func TestRegister_UnsupportedEnvironment(t *testing.T) {
	ps := newPushService(t)
	b := newBackend(t)

	c, _ := newTestClient(t, ps, b, func(o *Options) {
		o.Caps = Capabilities{Notifications: false, BackgroundWorkers: true}
	})

	assert.Equal(t, StatusUnsupported, c.Register(context.Background()))
	assert.Equal(t, int64(0), ps.tokenCalls.Load())
}

func TestRegister_ServiceUnsupported(t *testing.T) {
	ps := newPushService(t)
	ps.supported.Store(false)
	b := newBackend(t)

	c, _ := newTestClient(t, ps, b, nil)
	assert.Equal(t, StatusUnsupported, c.Register(context.Background()))
}

func TestRegister_PermissionDenied(t *testing.T) {
	ps := newPushService(t)
	b := newBackend(t)

	c, _ := newTestClient(t, ps, b, func(o *Options) { o.Permission = denied })

	assert.Equal(t, StatusDenied, c.Register(context.Background()))
	assert.Equal(t, int64(0), ps.tokenCalls.Load(), "no token request after refusal")
}

func TestRegister_TokenFailureDegradesChannel(t *testing.T) {
	ps := newPushService(t)
	ps.failToken.Store(true)
	b := newBackend(t)

	c, sess := newTestClient(t, ps, b, nil)

	assert.Equal(t, StatusDegraded, c.Register(context.Background()))
	assert.Greater(t, ps.tokenCalls.Load(), int64(1), "5xx responses are retried")

	stored, err := sess.PushToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestHandleMessage_ForegroundGoesToSinkOnly(t *testing.T) {
	ps := newPushService(t)
	b := newBackend(t)

	var sinkEvents []notify.Event
	system := &notifierSpy{}

	c, _ := newTestClient(t, ps, b, func(o *Options) {
		o.Foreground = func() bool { return true }
		o.System = system
	})
	c.router.SetSink(notify.SinkFunc(func(e notify.Event) { sinkEvents = append(sinkEvents, e) }))

	msg := Message{}
	msg.Notification.Title = "Appointment"
	msg.Notification.Body = "Tomorrow at 9"
	c.HandleMessage(context.Background(), msg)

	require.Len(t, sinkEvents, 1)
	assert.Equal(t, "Appointment", sinkEvents[0].Title)
	assert.Equal(t, int64(0), system.calls.Load(), "foreground push stays in-page")
}

func TestHandleMessage_BackgroundGoesToSystemNotifier(t *testing.T) {
	ps := newPushService(t)
	b := newBackend(t)

	var sinkEvents []notify.Event
	system := &notifierSpy{}

	c, _ := newTestClient(t, ps, b, func(o *Options) {
		o.Foreground = func() bool { return false }
		o.System = system
	})
	c.router.SetSink(notify.SinkFunc(func(e notify.Event) { sinkEvents = append(sinkEvents, e) }))

	msg := Message{Data: map[string]string{"title": "Lab result", "body": "Ready"}}
	c.HandleMessage(context.Background(), msg)

	assert.Empty(t, sinkEvents)
	assert.Equal(t, int64(1), system.calls.Load())
	assert.Equal(t, "Lab result", system.lastTitle.Load())
}

func TestMessage_FallbackPrecedence(t *testing.T) {
	withNotification := Message{Data: map[string]string{"title": "data-title", "body": "data-body"}}
	withNotification.Notification.Title = "notif-title"
	withNotification.Notification.Body = "notif-body"

	assert.Equal(t, "notif-title", withNotification.Title())
	assert.Equal(t, "notif-body", withNotification.Body())

	dataOnly := Message{Data: map[string]string{"title": "data-title", "body": "data-body"}}
	assert.Equal(t, "data-title", dataOnly.Title())
	assert.Equal(t, "data-body", dataOnly.Body())

	empty := Message{}
	assert.Equal(t, "Notification", empty.Title())
	assert.Empty(t, empty.Body())
}

func TestHandleNotificationClick_FocusesWindow(t *testing.T) {
	ps := newPushService(t)
	b := newBackend(t)

	spy := &focuserSpy{}
	c, _ := newTestClient(t, ps, b, func(o *Options) { o.Focuser = spy })

	c.HandleNotificationClick(context.Background())
	assert.Equal(t, int64(1), spy.calls.Load())
}

type notifierSpy struct {
	calls     atomic.Int64
	lastTitle atomic.Value
}

func (n *notifierSpy) Notify(_ context.Context, title, _ string) error {
	n.calls.Add(1)
	n.lastTitle.Store(title)
	return nil
}

type focuserSpy struct {
	calls atomic.Int64
}

func (f *focuserSpy) FocusOrOpen(context.Context) error {
	f.calls.Add(1)
	return nil
}
