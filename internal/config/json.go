package config

import (
	"encoding/json"
	"os"

	"github.com/clinicedge/clinicedge/internal/flagx"
	"github.com/clinicedge/clinicedge/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	BackendURL       string   `json:"backend_url"`
	RealtimeEndpoint string   `json:"realtime_endpoint"`
	DataDir          string   `json:"data_dir"`
	StorageBackend   string   `json:"storage_backend"`
	CacheVersion     string   `json:"cache_version"`
	CacheManifest    []string `json:"cache_manifest"`

	PushEndpoint  string `json:"push_endpoint"`
	PushAPIKey    string `json:"push_api_key"`
	PushProjectID string `json:"push_project_id"`
	PushSenderID  string `json:"push_sender_id"`
	PushPublicKey string `json:"push_public_key"`

	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the JSON override the defaults. Panics on read or
// unmarshal errors (caller should recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	applyJson(cfg, &jc)
}

func applyJson(cfg *Config, jc *JsonConfig) {
	if jc.BackendURL != "" {
		cfg.BackendURL = jc.BackendURL
	}
	if jc.RealtimeEndpoint != "" {
		cfg.RealtimeEndpoint = jc.RealtimeEndpoint
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.StorageBackend != "" {
		cfg.StorageBackend = jc.StorageBackend
	}
	if jc.CacheVersion != "" {
		cfg.CacheVersion = jc.CacheVersion
	}
	if len(jc.CacheManifest) > 0 {
		cfg.CacheManifest = jc.CacheManifest
	}
	if jc.PushEndpoint != "" {
		cfg.PushEndpoint = jc.PushEndpoint
	}
	if jc.PushAPIKey != "" {
		cfg.PushAPIKey = jc.PushAPIKey
	}
	if jc.PushProjectID != "" {
		cfg.PushProjectID = jc.PushProjectID
	}
	if jc.PushSenderID != "" {
		cfg.PushSenderID = jc.PushSenderID
	}
	if jc.PushPublicKey != "" {
		cfg.PushPublicKey = jc.PushPublicKey
	}
	if jc.OnlineCheckInterval != 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Std()
	}
}
