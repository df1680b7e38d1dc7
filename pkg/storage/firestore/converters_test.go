package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gravacoach/server/pkg/types"
)

func TestCredentialDocID(t *testing.T) {
	assert.Equal(t, "u1_whoop", CredentialDocID("u1", "whoop"))
}

func TestCredentialConvertersRoundTrip(t *testing.T) {
	linked := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cred := &types.CredentialRecord{
		UserID:       "u1",
		Provider:     "whoop",
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    1790000000,
		TokenType:    "bearer",
		Scope:        "read:recovery",
		LinkedAt:     linked,
	}

	m := CredentialToFirestore(cred)
	assert.Equal(t, "u1", m["user_id"])
	assert.Equal(t, int64(1790000000), m["expires_at"])
	_, hasRefreshedAt := m["last_refreshed_at"]
	assert.False(t, hasRefreshedAt, "zero times are omitted")

	back := FirestoreToCredential(m)
	assert.Equal(t, cred, back)
}

func TestFirestoreToCredentialToleratesMissingAndNumericVariants(t *testing.T) {
	// Firestore may hand integers back as int64 or float64 depending on the
	// write path.
	back := FirestoreToCredential(map[string]interface{}{
		"user_id":    "u2",
		"expires_at": float64(1790000000),
	})

	assert.Equal(t, "u2", back.UserID)
	assert.Equal(t, int64(1790000000), back.ExpiresAt)
	assert.Empty(t, back.AccessToken)
	assert.True(t, back.LinkedAt.IsZero())
}
