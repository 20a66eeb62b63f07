package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound é devolvido por Get quando a chave não existe no bucket.
var ErrNotFound = errors.New("object not found")

// ObjectStore é o que o batch precisa do armazenamento: subir o JPEG, ler e
// regravar o index diário e manter o alias latest/.
type ObjectStore interface {
	PutFile(ctx context.Context, key, path, contentType string) (string, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
}
