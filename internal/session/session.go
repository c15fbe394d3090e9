// Package session manages the fixed session markers kept in the substrate:
// the current user identifier, the bearer credential, and the push delivery
// token. It also decodes bearer claims so callers can tell an expired session
// from a missing one without a server round trip.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicedge/clinicedge/internal/common"
	"github.com/clinicedge/clinicedge/internal/kv"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the bearer claims this layer cares about.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// Manager reads and writes session markers through a substrate slot.
type Manager struct {
	slot kv.Slot
}

func NewManager(slot kv.Slot) *Manager {
	return &Manager{slot: slot}
}

// BearerToken returns the stored bearer credential, or "" when logged out.
func (m *Manager) BearerToken(ctx context.Context) (string, error) {
	v, _, err := m.slot.Get(ctx, common.BearerTokenKey)
	return v, err
}

func (m *Manager) SetBearerToken(ctx context.Context, token string) error {
	return m.slot.Set(ctx, common.BearerTokenKey, token)
}

// ClearBearerToken forgets the credential, e.g. on logout. The push token is
// cleared alongside it so a logged-out installation stops mirroring tokens.
func (m *Manager) ClearBearerToken(ctx context.Context) error {
	if err := m.slot.Delete(ctx, common.BearerTokenKey); err != nil {
		return err
	}
	return m.slot.Delete(ctx, common.PushTokenKey)
}

// CurrentUserID returns the current session user marker, or "".
func (m *Manager) CurrentUserID(ctx context.Context) (string, error) {
	v, _, err := m.slot.Get(ctx, common.SessionUserKey)
	return v, err
}

func (m *Manager) SetCurrentUserID(ctx context.Context, id string) error {
	return m.slot.Set(ctx, common.SessionUserKey, id)
}

// PushToken returns the persisted push delivery token, or "".
func (m *Manager) PushToken(ctx context.Context) (string, error) {
	v, _, err := m.slot.Get(ctx, common.PushTokenKey)
	return v, err
}

func (m *Manager) SetPushToken(ctx context.Context, token string) error {
	return m.slot.Set(ctx, common.PushTokenKey, token)
}

// InstallationID returns the stable per-installation identifier, minting and
// persisting one on first use.
func (m *Manager) InstallationID(ctx context.Context) (string, error) {
	v, ok, err := m.slot.Get(ctx, common.InstallationKey)
	if err != nil {
		return "", err
	}
	if ok && v != "" {
		return v, nil
	}

	id := uuid.NewString()
	if err := m.slot.Set(ctx, common.InstallationKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// DecodeClaims extracts claims from a bearer token without verifying the
// signature. The backend is the authority on token validity; the client only
// needs the subject and expiry to decide whether to attach the token.
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	return claims, nil
}

// Expired reports whether the claims carry an expiry in the past.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now)
}
