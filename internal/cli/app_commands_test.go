package cli

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/clinicedge/clinicedge/internal/assetcache"
	"github.com/clinicedge/clinicedge/internal/config"
	"github.com/clinicedge/clinicedge/internal/docstore"
	"github.com/clinicedge/clinicedge/internal/kv"
	"github.com/clinicedge/clinicedge/internal/logging"
	"github.com/clinicedge/clinicedge/internal/push"
	"github.com/clinicedge/clinicedge/internal/realtime"
	"github.com/clinicedge/clinicedge/internal/seed"
	"github.com/clinicedge/clinicedge/internal/session"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	lines := &[]string{}
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		*lines = append(*lines, fmt.Sprintln(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return lines
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	ctx := context.Background()

	slot := kv.NewFallback(kv.NewMemorySlot(), logging.Nop())
	store := docstore.New(slot)
	markers := session.NewManager(slot)
	require.NoError(t, seed.Run(ctx, store, markers, logging.Nop()))

	cfg := &config.Config{}
	cfg.LoadDefaults()

	return &App{
		config:  cfg,
		log:     logging.Nop(),
		slot:    slot,
		store:   store,
		markers: markers,
		cache: assetcache.NewManager(assetcache.Config{
			Root:    t.TempDir(),
			Version: cfg.CacheVersion,
		}, nil, logging.Nop()),
		pushCli: push.NewClient(push.Options{Session: markers}),
		rtCli:   realtime.NewClient(realtime.Options{}),
		Mode:    ModeOffline,
	}
}

func joined(lines *[]string) string { return strings.Join(*lines, "") }

func TestApp_Collections(t *testing.T) {
	a := newTestApp(t)
	out := captureOutput(t)

	require.NoError(t, a.Collections(context.Background()))

	got := joined(out)
	require.Contains(t, got, "patients")
	require.Contains(t, got, "12 record(s)")
	require.Contains(t, got, "users")
	require.Contains(t, got, "organizations")
}

func TestApp_ListAndGet(t *testing.T) {
	a := newTestApp(t)
	out := captureOutput(t)

	require.NoError(t, a.List(context.Background(), seed.UsersCollection))
	require.Contains(t, joined(out), "Admin")

	*out = nil
	require.NoError(t, a.List(context.Background(), "appointments"))
	require.Contains(t, joined(out), "(empty)")

	*out = nil
	users, err := a.store.List(context.Background(), seed.UsersCollection)
	require.NoError(t, err)
	require.NotEmpty(t, users)

	require.NoError(t, a.Get(context.Background(), seed.UsersCollection, users[0].ID()))
	require.Contains(t, joined(out), users[0].ID())

	*out = nil
	require.NoError(t, a.Get(context.Background(), seed.UsersCollection, "9999"))
	require.Contains(t, joined(out), "not found")
}

func TestApp_Delete(t *testing.T) {
	a := newTestApp(t)
	out := captureOutput(t)
	ctx := context.Background()

	patients, err := a.store.List(ctx, seed.PatientsCollection)
	require.NoError(t, err)
	before := len(patients)

	require.NoError(t, a.Delete(ctx, seed.PatientsCollection, patients[0].ID()))
	require.Contains(t, joined(out), "deleted")

	patients, err = a.store.List(ctx, seed.PatientsCollection)
	require.NoError(t, err)
	require.Len(t, patients, before-1)
}

func TestOpenDurableSlot_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.StorageBackend = config.StorageFile

	slot, err := openDurableSlot(ctx, cfg)
	require.NoError(t, err)
	_, ok := slot.(*kv.FileSlot)
	require.True(t, ok, "file backend must open a FileSlot")
	require.NoError(t, slot.Close())

	cfg.StorageBackend = "bolt"
	_, err = openDurableSlot(ctx, cfg)
	require.Error(t, err)
}

func TestNewApp_FileBackend(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.StorageBackend = config.StorageFile

	a, err := NewApp(ctx, cfg, logging.Nop())
	require.NoError(t, err)
	defer func() { _ = a.slot.Close() }()

	require.Equal(t, kv.StatusDurable, a.slot.Status())

	users, err := a.store.List(ctx, seed.UsersCollection)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestApp_Status(t *testing.T) {
	a := newTestApp(t)
	out := captureOutput(t)

	require.NoError(t, a.Status(context.Background()))

	got := joined(out)
	require.Contains(t, got, "storage:  durable")
	require.Contains(t, got, "push:     inactive")
	require.Contains(t, got, "socket:   disconnected")
	require.Contains(t, got, "user:")
}
