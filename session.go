package lattice

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Session identifies the acting user of a request.
// The zero value is the anonymous session.
type Session struct {
	// UserID is the user's uuid; empty for anonymous callers.
	UserID string `json:"userId,omitempty"`

	// Roles are matched by roles permission rules.
	Roles []string `json:"roles,omitempty"`

	// Properties are exposed to record conditions as {user.<name>}.
	Properties map[string]any `json:"properties,omitempty"`
}

// Anonymous returns the session of an unauthenticated caller.
func Anonymous() Session {
	return Session{}
}

// Authenticated reports whether the session has a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// HasRole reports whether the session carries role.
func (s Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// HasAnyRole reports whether the session carries at least one of roles.
func (s Session) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if s.HasRole(r) {
			return true
		}
	}
	return false
}

// Validate checks that UserID, when set, is a uuid.
func (s Session) Validate() error {
	if s.UserID == "" {
		return nil
	}
	if _, err := uuid.Parse(s.UserID); err != nil {
		return fmt.Errorf("%w: user id %q is not a uuid", ErrInvalidSession, s.UserID)
	}
	return nil
}

// settings returns the values for the session settings, in the order
// SettingUserID, SettingUserRoles, SettingUserProperties.
func (s Session) settings() (userID, roles, props string, err error) {
	rolesJSON, err := json.Marshal(nonNil(s.Roles))
	if err != nil {
		return "", "", "", fmt.Errorf("%w: roles: %v", ErrInvalidSession, err)
	}
	properties := s.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: properties: %v", ErrInvalidSession, err)
	}
	return s.UserID, string(rolesJSON), string(propsJSON), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const bindSessionSQL = `SELECT set_config($1, $2, true), set_config($3, $4, true), set_config($5, $6, true)`

// BindSession stores s in transaction-local settings so the auth schema
// functions see it. q must be a transaction; outside one the settings are
// discarded when the statement ends.
//
// When role is not empty the transaction also switches to that role with
// SET LOCAL ROLE, so policies apply even when connected as a superuser.
func BindSession(ctx context.Context, q Querier, s Session, role string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	userID, roles, props, err := s.settings()
	if err != nil {
		return err
	}

	if role != "" {
		if _, err := q.ExecContext(ctx, "SET LOCAL ROLE "+pq.QuoteIdentifier(role)); err != nil {
			return fmt.Errorf("switching to role %q: %w", role, err)
		}
	}

	_, err = q.ExecContext(ctx, bindSessionSQL,
		SettingUserID, userID,
		SettingUserRoles, roles,
		SettingUserProperties, props,
	)
	if err != nil {
		return mapError("binding session", err)
	}
	return nil
}

