package firestore

import (
	"time"

	"github.com/gravacoach/server/pkg/types"
)

// Helper to safely get string from map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Helper to safely get int64 from map (Firestore stores integers as int64)
func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case float64:
			return int64(n)
		}
	}
	return 0
}

// Helper to safely get time from map (handles time.Time from Firestore)
func getTime(m map[string]interface{}, key string) time.Time {
	if v, ok := m[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// --- CredentialRecord Converters ---

func CredentialToFirestore(c *types.CredentialRecord) map[string]interface{} {
	m := map[string]interface{}{
		"user_id":       c.UserID,
		"provider":      c.Provider,
		"access_token":  c.AccessToken,
		"refresh_token": c.RefreshToken,
		"expires_at":    c.ExpiresAt,
		"token_type":    c.TokenType,
		"scope":         c.Scope,
	}
	if !c.LinkedAt.IsZero() {
		m["linked_at"] = c.LinkedAt
	}
	if !c.LastRefreshedAt.IsZero() {
		m["last_refreshed_at"] = c.LastRefreshedAt
	}
	return m
}

func FirestoreToCredential(m map[string]interface{}) *types.CredentialRecord {
	return &types.CredentialRecord{
		UserID:          getString(m, "user_id"),
		Provider:        getString(m, "provider"),
		AccessToken:     getString(m, "access_token"),
		RefreshToken:    getString(m, "refresh_token"),
		ExpiresAt:       getInt64(m, "expires_at"),
		TokenType:       getString(m, "token_type"),
		Scope:           getString(m, "scope"),
		LinkedAt:        getTime(m, "linked_at"),
		LastRefreshedAt: getTime(m, "last_refreshed_at"),
	}
}
