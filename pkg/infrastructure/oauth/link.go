package oauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	shared "github.com/gravacoach/server/pkg"
	"github.com/gravacoach/server/pkg/types"
)

// stateTTL bounds how long an authorization redirect may take before the
// state parameter is considered stale.
const stateTTL = 10 * time.Minute

var (
	ErrInvalidState = errors.New("oauth: unknown or expired state")
)

// Linker drives the authorization-code flow that creates the credential
// record in the first place. Refreshing an existing credential is the token
// source's job; the linker is only involved when a user (re-)connects.
type Linker struct {
	DB       shared.Database
	Provider string
	Config   *oauth2.Config

	mu     sync.Mutex
	states map[string]stateEntry
}

type stateEntry struct {
	userID  string
	expires time.Time
}

func NewLinker(db shared.Database, provider string, cfg *oauth2.Config) *Linker {
	return &Linker{
		DB:       db,
		Provider: provider,
		Config:   cfg,
		states:   make(map[string]stateEntry),
	}
}

// AuthURL returns the provider consent URL for the given user, remembering
// the state parameter so the callback can be tied back to them.
func (l *Linker) AuthURL(userID string) string {
	state := uuid.NewString()

	l.mu.Lock()
	now := time.Now()
	for s, e := range l.states {
		if now.After(e.expires) {
			delete(l.states, s)
		}
	}
	l.states[state] = stateEntry{userID: userID, expires: now.Add(stateTTL)}
	l.mu.Unlock()

	return l.Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// HandleCallback exchanges the authorization code and persists the resulting
// credential record. Returns the user the state belonged to.
func (l *Linker) HandleCallback(ctx context.Context, state, code string) (string, error) {
	l.mu.Lock()
	entry, ok := l.states[state]
	delete(l.states, state)
	l.mu.Unlock()

	if !ok || time.Now().After(entry.expires) {
		return "", ErrInvalidState
	}

	tok, err := l.Config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("code exchange: %w", err)
	}

	record := &types.CredentialRecord{
		UserID:       entry.userID,
		Provider:     l.Provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		LinkedAt:     time.Now(),
	}
	if !tok.Expiry.IsZero() {
		record.ExpiresAt = tok.Expiry.Unix()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		record.Scope = scope
	}

	if err := l.DB.SetCredential(ctx, record); err != nil {
		return "", fmt.Errorf("persist credential: %w", err)
	}

	return entry.userID, nil
}
