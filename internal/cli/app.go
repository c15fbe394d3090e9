// Package cli wires the offline layer together behind a small interactive
// shell: substrate, document store, seeder, asset cache, and both
// notification channels.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/clinicedge/clinicedge/internal/assetcache"
	"github.com/clinicedge/clinicedge/internal/config"
	"github.com/clinicedge/clinicedge/internal/docstore"
	"github.com/clinicedge/clinicedge/internal/kv"
	"github.com/clinicedge/clinicedge/internal/logging"
	"github.com/clinicedge/clinicedge/internal/notify"
	"github.com/clinicedge/clinicedge/internal/push"
	"github.com/clinicedge/clinicedge/internal/realtime"
	"github.com/clinicedge/clinicedge/internal/seed"
	"github.com/clinicedge/clinicedge/internal/session"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config  *config.Config
	log     logging.Logger
	slot    *kv.Fallback
	store   *docstore.Store
	markers *session.Manager
	router  *notify.Router
	cache   *assetcache.Manager
	pushCli *push.Client
	rtCli   *realtime.Client
	Mode    Mode
}

func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Nop()
	}

	var slot *kv.Fallback
	durable, err := openDurableSlot(ctx, c)
	if err != nil {
		log.Warn(ctx, "durable storage unavailable, running in-memory only", "error", err)
		slot = kv.NewFallback(brokenSlot{err: err}, log)
	} else {
		slot = kv.NewFallback(durable, log)
	}

	store := docstore.New(slot, docstore.WithLogger(log))
	markers := session.NewManager(slot)

	if err := seed.Run(ctx, store, markers, log); err != nil {
		log.Warn(ctx, "seeding failed", "error", err)
	}

	router := notify.NewRouter(log)
	system := notify.NewLogNotifier(log)

	cache := assetcache.NewManager(assetcache.Config{
		Root:     filepath.Join(c.DataDir, "cache"),
		Version:  c.CacheVersion,
		Origin:   c.BackendURL,
		Manifest: c.CacheManifest,
	}, nil, log)

	pushCli := push.NewClient(push.Options{
		Service: push.ServiceConfig{
			Endpoint:  c.PushEndpoint,
			APIKey:    c.PushAPIKey,
			ProjectID: c.PushProjectID,
			SenderID:  c.PushSenderID,
			PublicKey: c.PushPublicKey,
		},
		BackendURL: c.BackendURL,
		Session:    markers,
		Router:     router,
		System:     system,
		Caps:       push.Capabilities{Notifications: true, BackgroundWorkers: true},
		Permission: func(context.Context) notify.Permission { return notify.PermissionGranted },
		Logger:     log,
	})

	rtCli := realtime.NewClient(realtime.Options{
		Endpoint:   c.RealtimeEndpoint,
		Session:    markers,
		Router:     router,
		System:     system,
		Permission: func() notify.Permission { return notify.PermissionGranted },
		Logger:     log,
	})

	return &App{
		config:  c,
		log:     log,
		slot:    slot,
		store:   store,
		markers: markers,
		router:  router,
		cache:   cache,
		pushCli: pushCli,
		rtCli:   rtCli,
		Mode:    ModeOffline,
	}, nil
}

// openDurableSlot builds the configured durable backend under the data
// directory.
func openDurableSlot(ctx context.Context, c *config.Config) (kv.Slot, error) {
	switch c.StorageBackend {
	case config.StorageFile:
		return kv.NewFileSlot(filepath.Join(c.DataDir, "clinicedge.json")), nil
	case config.StorageSQLite, "":
		return kv.OpenSQLiteSlot(ctx, filepath.Join(c.DataDir, "clinicedge.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

// Run starts the channels and the interactive shell, blocking until the user
// exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	defer func() { _ = a.slot.Close() }()
	defer func() { _ = a.rtCli.Close() }()

	// the shell shows notifications inline, standing in for the page sink
	a.router.SetSink(notify.SinkFunc(func(e notify.Event) {
		printlnFn(fmt.Sprintf("[%s] %s: %s", e.Type, e.Title, e.Message))
	}))

	if err := a.cache.Install(ctx); err != nil {
		a.log.Warn(ctx, "asset cache install failed", "error", err)
	} else if err := a.cache.Activate(ctx); err != nil {
		a.log.Warn(ctx, "asset cache activate failed", "error", err)
	}

	go func() {
		if a.pushCli.Register(ctx) == push.StatusActive {
			a.pushCli.Listen(ctx)
		}
	}()

	if err := a.rtCli.Init(ctx); err == nil {
		a.setMode(ModeOnline)
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, func() string { return string(a.Mode) }, scanner)
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		a.log.Info(context.Background(), "connectivity mode changed", "mode", string(mode))
	}
}

// StartOnlineStatusWatcher probes the backend at the configured interval and
// flips the shell's mode indicator accordingly.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, a.config.BackendURL, nil)
			if err != nil {
				cancel()
				continue
			}
			resp, err := http.DefaultClient.Do(req)
			cancel()
			if err != nil {
				a.setMode(ModeOffline)
				continue
			}
			_ = resp.Body.Close()
			a.setMode(ModeOnline)
		case <-ctx.Done():
			return
		}
	}
}

// Collections prints every collection name with its record count.
func (a *App) Collections(ctx context.Context) error {
	names, err := a.store.Collections(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		records, err := a.store.List(ctx, name)
		if err != nil {
			return err
		}
		printlnFn(fmt.Sprintf("%-16s %d record(s)", name, len(records)))
	}
	return nil
}

// List prints the records of one collection in insertion order.
func (a *App) List(ctx context.Context, collection string) error {
	records, err := a.store.List(ctx, collection)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		printlnFn("(empty)")
		return nil
	}
	for _, r := range records {
		printlnFn(formatRecord(r))
	}
	return nil
}

// Get prints a single record, or a not-found note.
func (a *App) Get(ctx context.Context, collection, id string) error {
	r, err := a.store.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if r == nil {
		printlnFn("not found")
		return nil
	}
	printlnFn(formatRecord(r))
	return nil
}

// Delete removes a record by id.
func (a *App) Delete(ctx context.Context, collection, id string) error {
	if _, err := a.store.Delete(ctx, collection, id); err != nil {
		return err
	}
	printlnFn("deleted")
	return nil
}

// Status prints substrate and channel health.
func (a *App) Status(ctx context.Context) error {
	printlnFn("storage:  " + a.slot.Status().String())
	printlnFn("push:     " + string(a.pushCli.Status()))

	socket := "disconnected"
	if a.rtCli.Conn() != nil {
		socket = "connected"
	}
	printlnFn("socket:   " + socket)

	user, err := a.markers.CurrentUserID(ctx)
	if err == nil && user != "" {
		printlnFn("user:     " + user)
	}

	tags, err := a.cache.Generations()
	if err == nil {
		printlnFn(fmt.Sprintf("cache:    %v (current %s)", tags, a.config.CacheVersion))
	}
	return nil
}

func formatRecord(r docstore.Record) string {
	name, _ := r["full_name"].(string)
	if name == "" {
		name, _ = r["name"].(string)
	}
	return fmt.Sprintf("%-8s %s", r.ID(), name)
}

// brokenSlot stands in for a durable slot that could not even be opened, so
// the fallback degrades on first touch.
type brokenSlot struct{ err error }

func (b brokenSlot) Get(context.Context, string) (string, bool, error) { return "", false, b.err }
func (b brokenSlot) Set(context.Context, string, string) error        { return b.err }
func (b brokenSlot) Delete(context.Context, string) error             { return b.err }
func (b brokenSlot) Close() error                                     { return nil }
