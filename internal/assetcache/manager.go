// Package assetcache implements the versioned cache of application-shell
// assets. One generation of cached responses exists per version tag; install
// populates the current generation from a manifest, activation deletes every
// other generation, and the fetch path serves requests with a policy chosen
// by request kind: network-first for navigations, cache-first for static
// assets.
package assetcache

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/clinicedge/clinicedge/internal/filex"
	"github.com/clinicedge/clinicedge/internal/logging"
)

// RootDocument is the fallback served to an offline navigation with no exact
// cache entry.
const RootDocument = "/"

// Config describes one cache installation.
type Config struct {
	// Root is the directory holding all generations, one subdirectory each.
	Root string
	// Version tags the current generation.
	Version string
	// Origin is the base URL manifest entries are fetched from at install.
	Origin string
	// Manifest lists the application-shell paths populated at install.
	Manifest []string
}

// entryMeta is the sidecar metadata stored next to each cached body.
type entryMeta struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
}

// Manager owns the generation lifecycle and the fetch policies.
type Manager struct {
	cfg    Config
	client *http.Client
	log    logging.Logger

	// wg tracks fire-and-forget cache writes so tests can drain them.
	wg sync.WaitGroup
}

func NewManager(cfg Config, client *http.Client, log logging.Logger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{cfg: cfg, client: client, log: log}
}

func (m *Manager) generationDir(tag string) string {
	return filepath.Join(m.cfg.Root, tag)
}

// entryPath maps a request path to the file pair holding its cached response.
func (m *Manager) entryPath(tag, requestPath string) string {
	key := base64.RawURLEncoding.EncodeToString([]byte(requestPath))
	return filepath.Join(m.generationDir(tag), key)
}

// Install opens the current generation and populates it with every manifest
// path fetched from the origin. Population is all-or-nothing in spirit: the
// first fetch failure aborts the install, mirroring atomic shell precaching.
// Install never waits on older generations; activation handles those.
func (m *Manager) Install(ctx context.Context) error {
	if _, err := filex.EnsureDir(m.generationDir(m.cfg.Version)); err != nil {
		return fmt.Errorf("open cache generation %q: %w", m.cfg.Version, err)
	}

	for _, p := range m.cfg.Manifest {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.Origin+p, nil)
		if err != nil {
			return fmt.Errorf("install %q: %w", p, err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("install %q: %w", p, err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("install %q: %w", p, err)
		}
		if err := m.store(p, resp.StatusCode, resp.Header.Get("Content-Type"), body); err != nil {
			return fmt.Errorf("install %q: %w", p, err)
		}
	}

	m.log.Info(ctx, "cache generation installed", "tag", m.cfg.Version, "entries", len(m.cfg.Manifest))
	return nil
}

// Activate deletes every generation whose tag differs from the current one.
// After activation this manager is the only one serving; there is no
// handover protocol beyond the cleanup.
func (m *Manager) Activate(ctx context.Context) error {
	entries, err := os.ReadDir(m.cfg.Root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enumerate cache generations: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() || e.Name() == m.cfg.Version {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.cfg.Root, e.Name())); err != nil {
			return fmt.Errorf("delete cache generation %q: %w", e.Name(), err)
		}
		m.log.Info(ctx, "stale cache generation deleted", "tag", e.Name())
	}
	return nil
}

// Generations lists the tags currently present under the cache root.
func (m *Manager) Generations() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, e := range entries {
		if e.IsDir() {
			tags = append(tags, e.Name())
		}
	}
	return tags, nil
}

func (m *Manager) store(requestPath string, status int, contentType string, body []byte) error {
	base := m.entryPath(m.cfg.Version, requestPath)
	meta, err := json.Marshal(entryMeta{Status: status, ContentType: contentType})
	if err != nil {
		return err
	}
	if err := filex.WriteAtomic(base+".body", body); err != nil {
		return err
	}
	return filex.WriteAtomic(base+".meta", meta)
}

// storeAsync clones a response into the cache without blocking the caller.
func (m *Manager) storeAsync(requestPath string, status int, contentType string, body []byte) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.store(requestPath, status, contentType, body); err != nil {
			m.log.Warn(context.Background(), "cache write failed", "path", requestPath, "error", err)
		}
	}()
}

// Drain waits for in-flight cache writes. Test seam.
func (m *Manager) Drain() { m.wg.Wait() }

// cached loads the cached response for a request path, or (nil, false).
func (m *Manager) cached(requestPath string) (*entryMeta, []byte, bool) {
	base := m.entryPath(m.cfg.Version, requestPath)
	rawMeta, err := os.ReadFile(base + ".meta")
	if err != nil {
		return nil, nil, false
	}
	body, err := os.ReadFile(base + ".body")
	if err != nil {
		return nil, nil, false
	}
	var meta entryMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, nil, false
	}
	return &meta, body, true
}

// isNavigation classifies full-document loads: an explicit navigate fetch
// mode, or a plain GET asking for HTML.
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func cachedResponse(req *http.Request, meta *entryMeta, body []byte) *http.Response {
	header := http.Header{}
	if meta.ContentType != "" {
		header.Set("Content-Type", meta.ContentType)
	}
	return &http.Response{
		StatusCode:    meta.Status,
		Status:        http.StatusText(meta.Status),
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// networkResponse rebuilds a response whose body has been consumed for the
// cache clone.
func networkResponse(resp *http.Response, body []byte) *http.Response {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp
}

// Transport wraps an http.RoundTripper with the fetch policies. Only GET
// requests are intercepted; everything else passes through untouched.
type Transport struct {
	Manager *Manager
	Next    http.RoundTripper
}

func (t *Transport) next() http.RoundTripper {
	if t.Next != nil {
		return t.Next
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next().RoundTrip(req)
	}
	if isNavigation(req) {
		return t.networkFirst(req)
	}
	return t.cacheFirst(req)
}

// networkFirst serves navigations: try the network, clone successes into the
// cache, and fall back offline to the exact cached entry, then to the cached
// application root document.
func (t *Transport) networkFirst(req *http.Request) (*http.Response, error) {
	key := req.URL.RequestURI()

	resp, err := t.next().RoundTrip(req)
	if err == nil {
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		t.Manager.storeAsync(key, resp.StatusCode, resp.Header.Get("Content-Type"), body)
		return networkResponse(resp, body), nil
	}

	if meta, body, ok := t.Manager.cached(key); ok {
		return cachedResponse(req, meta, body), nil
	}
	if meta, body, ok := t.Manager.cached(RootDocument); ok {
		return cachedResponse(req, meta, body), nil
	}
	return nil, err
}

// cacheFirst serves static assets: the cached entry wins outright, and cache
// misses go to the network with an async clone into the cache.
func (t *Transport) cacheFirst(req *http.Request) (*http.Response, error) {
	key := req.URL.RequestURI()

	if meta, body, ok := t.Manager.cached(key); ok {
		return cachedResponse(req, meta, body), nil
	}

	resp, err := t.next().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	t.Manager.storeAsync(key, resp.StatusCode, resp.Header.Get("Content-Type"), body)
	return networkResponse(resp, body), nil
}
