// Package config assembles runtime settings for the offline layer from
// defaults, an optional JSON file, and command-line flags, in that order of
// precedence.
package config

import "time"

// Durable slot backends selectable via StorageBackend.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

// Config holds runtime settings for the offline agent.
//
// Fields:
//   - BackendURL: base URL of the backend REST surface.
//   - RealtimeEndpoint: ws:// URL of the realtime notification socket.
//   - DataDir: directory holding the durable slot and the asset cache.
//   - StorageBackend: durable slot implementation, StorageSQLite or
//     StorageFile.
//   - CacheVersion: tag of the current asset-cache generation.
//   - CacheManifest: application-shell paths precached at install.
//   - Push*: fixed, non-secret push-service configuration.
//   - OnlineCheckInterval: how often the agent probes backend reachability.
type Config struct {
	BackendURL       string
	RealtimeEndpoint string

	DataDir        string
	StorageBackend string
	CacheVersion   string
	CacheManifest  []string

	PushEndpoint  string
	PushAPIKey    string
	PushProjectID string
	PushSenderID  string
	PushPublicKey string

	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:8080"
	c.RealtimeEndpoint = "ws://127.0.0.1:8080/realtime"
	c.DataDir = "data"
	c.StorageBackend = StorageSQLite
	c.CacheVersion = "v1"
	c.CacheManifest = []string{"/", "/index.html", "/assets/app.js", "/assets/styles.css"}
	c.PushEndpoint = "http://127.0.0.1:8090"
	c.PushAPIKey = "demo-api-key"
	c.PushProjectID = "clinicedge-app"
	c.PushSenderID = "842511"
	c.PushPublicKey = "BClinicEdgeDemoPublicKey"
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
