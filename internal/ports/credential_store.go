package ports

import "context"

// CredentialStore is a directory of named account credential blobs. A name
// with a non-empty blob is a loadable account.
type CredentialStore interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, blob []byte) error
	Delete(ctx context.Context, name string) error
}
