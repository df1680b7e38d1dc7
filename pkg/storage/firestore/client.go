package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/gravacoach/server/pkg"
	"github.com/gravacoach/server/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// Credentials is a top-level collection: credentials/{userId}_{provider}
// One document per linked provider account.
func (c *Client) Credentials() *Collection[types.CredentialRecord] {
	return &Collection[types.CredentialRecord]{
		Ref:           c.fs.Collection(shared.CollectionCredentials),
		ToFirestore:   CredentialToFirestore,
		FromFirestore: FirestoreToCredential,
	}
}

// CredentialDocID builds the document id for a (user, provider) pair.
func CredentialDocID(userID, provider string) string {
	return userID + "_" + provider
}
