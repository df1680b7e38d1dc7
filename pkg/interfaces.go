package shared

import (
	"context"
	"errors"

	"github.com/gravacoach/server/pkg/types"
)

// ErrCredentialNotFound is returned by Database implementations when no
// credential record exists for a (user, provider) pair.
var ErrCredentialNotFound = errors.New("credential not found")

// --- Persistence Interfaces ---

type Database interface {
	GetCredential(ctx context.Context, userID, provider string) (*types.CredentialRecord, error)
	SetCredential(ctx context.Context, record *types.CredentialRecord) error
	// UpdateCredential applies a partial update. Keys are Firestore field
	// names (snake_case); omitted fields are left untouched.
	UpdateCredential(ctx context.Context, userID, provider string, data map[string]interface{}) error
}

// --- Secrets Interfaces ---

type SecretStore interface {
	GetSecret(ctx context.Context, name string) (string, error)
}
