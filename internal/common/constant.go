// Package common contains shared constants and sentinel errors used across
// the offline layer components.
package common

// Substrate keys. The whole layer persists through a handful of fixed slots
// in the durable key-value store.
const (
	// DatabaseKey holds the serialized database document (all collections
	// plus the identifier counter).
	DatabaseKey = "clinicedge_db"

	// SessionUserKey holds the identifier of the currently signed-in user.
	SessionUserKey = "current_user_id"

	// BearerTokenKey holds the session bearer credential, when present.
	BearerTokenKey = "auth_token"

	// PushTokenKey holds the last push delivery token issued for this
	// installation.
	PushTokenKey = "push_token"

	// InstallationKey holds the per-installation identifier used when
	// provisioning push tokens.
	InstallationKey = "installation_id"
)

// NotificationEventName is the inbound realtime event carrying a new
// notification payload.
const NotificationEventName = "notification:new"

// RegisterTokenPath is the backend endpoint that mirrors push tokens.
const RegisterTokenPath = "/api/notifications/register-token"
