package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shared "github.com/gravacoach/server/pkg"
	storage "github.com/gravacoach/server/pkg/storage/firestore"
	"github.com/gravacoach/server/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore
// It wraps our typed storage client
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) GetCredential(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
	doc, err := a.storage.Credentials().Doc(storage.CredentialDocID(userID, provider)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, shared.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return doc, nil
}

func (a *FirestoreAdapter) SetCredential(ctx context.Context, record *types.CredentialRecord) error {
	return a.storage.Credentials().Doc(storage.CredentialDocID(record.UserID, record.Provider)).Set(ctx, record)
}

func (a *FirestoreAdapter) UpdateCredential(ctx context.Context, userID, provider string, data map[string]interface{}) error {
	return a.storage.Credentials().Doc(storage.CredentialDocID(userID, provider)).Update(ctx, data)
}
