// Package moderation holds the write gate and the administrative
// mutations of a user. All functions are pure: they never touch storage.
package moderation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"veranda/internal/content"
	"veranda/internal/models"
)

const MaxPrefixLength = 16

// CanWrite is false only while the user's timeout expiry lies strictly
// after now. Role has no bearing on ordinary writes.
func CanWrite(u models.User, now time.Time) bool {
	if !u.HasTimeout() {
		return true
	}
	return !u.TimeoutExpiry().After(now)
}

// RequireAdmin guards administrative actions.
func RequireAdmin(actor models.User) error {
	if actor.Role != models.RoleAdministrator {
		return fmt.Errorf("%w: administrator role required", models.ErrAuthorizationDenied)
	}
	return nil
}

func ImposeTimeout(u models.User, until time.Time, reason string) models.User {
	u.TimeoutUntil = until.UnixMilli()
	u.TimeoutReason = content.Sanitize(strings.TrimSpace(reason))
	return u
}

// ClearTimeout resets both timeout fields to their empty state.
func ClearTimeout(u models.User) models.User {
	u.TimeoutUntil = 0
	u.TimeoutReason = ""
	return u
}

func SetRole(u models.User, role models.Role) (models.User, error) {
	if !role.Valid() {
		return u, fmt.Errorf("%w: unknown role %q", models.ErrInvalidArgument, role)
	}
	u.Role = role
	return u, nil
}

func SetPrefix(u models.User, prefix string) (models.User, error) {
	prefix = content.Sanitize(strings.TrimSpace(prefix))
	if utf8.RuneCountInString(prefix) > MaxPrefixLength {
		return u, fmt.Errorf("%w: prefix longer than %d characters", models.ErrInvalidArgument, MaxPrefixLength)
	}
	u.Prefix = prefix
	return u, nil
}

// Gate is the write predicate bound to a clock.
type Gate struct {
	now func() time.Time
}

func NewGate() *Gate {
	return &Gate{now: time.Now}
}

func NewGateWithClock(now func() time.Time) *Gate {
	return &Gate{now: now}
}

func (g *Gate) CanWrite(u models.User) bool {
	return CanWrite(u, g.now())
}

// Check returns ErrAuthorizationDenied when the user may not write.
func (g *Gate) Check(u models.User) error {
	if g.CanWrite(u) {
		return nil
	}
	reason := u.TimeoutReason
	if reason == "" {
		reason = "no reason given"
	}
	return fmt.Errorf("%w: timed out until %s (%s)",
		models.ErrAuthorizationDenied, u.TimeoutExpiry().UTC().Format(time.RFC3339), reason)
}
