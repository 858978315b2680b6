// Package verify decides whether an identity may use full bot features,
// based on the stored profile's phone-verification state.
package verify

import (
	"context"
	"errors"
	"fmt"

	"gembot/internal/store"
)

// Status is the verification outcome for an identity
type Status string

const (
	StatusNotRegistered Status = "not_registered" // no profile exists yet
	StatusUnverified    Status = "unverified"     // profile exists, no contact shared
	StatusVerified      Status = "verified"       // phone on record
)

// Access pairs a status with the profile it was derived from.
// User is nil for StatusNotRegistered.
type Access struct {
	Status Status
	User   *store.User
}

// Verified reports whether the identity may use full features
func (a Access) Verified() bool {
	return a.Status == StatusVerified
}

// Gate performs verification lookups against the store
type Gate struct {
	store *store.Store
}

// NewGate creates a verification gate backed by the given store
func NewGate(s *store.Store) *Gate {
	return &Gate{store: s}
}

// Check returns the verification status for an identity
func (g *Gate) Check(ctx context.Context, identity string) (Access, error) {
	user, err := g.store.GetUser(ctx, identity)
	if errors.Is(err, store.ErrUserNotFound) {
		return Access{Status: StatusNotRegistered}, nil
	}
	if err != nil {
		return Access{}, fmt.Errorf("verification lookup failed: %w", err)
	}

	if !user.Verified {
		return Access{Status: StatusUnverified, User: user}, nil
	}
	return Access{Status: StatusVerified, User: user}, nil
}

// Register creates an unverified profile for a first-contact identity.
// Safe to call when the profile already exists.
func (g *Gate) Register(ctx context.Context, identity, firstName, username string) (*store.User, error) {
	user, err := g.store.CreateUser(ctx, identity, firstName, username)
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	return user, nil
}

// RecordContact stores the shared phone number and marks the identity
// verified. Idempotent: last shared phone wins, verified stays set. The
// profile is created if the contact arrives before any other event.
func (g *Gate) RecordContact(ctx context.Context, identity, phone, firstName, username string) (*store.User, error) {
	user, err := g.store.SetPhone(ctx, identity, phone, firstName, username)
	if err != nil {
		return nil, fmt.Errorf("failed to record contact: %w", err)
	}
	return user, nil
}
