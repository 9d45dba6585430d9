package document

import (
	"context"

	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
)

// Repository lists and deletes stored chunks by id prefix within a namespace.
type Repository interface {
	List(ctx context.Context, ns, idPrefix string) ([]domvec.Ref, error)
	DeleteByPrefix(ctx context.Context, ns, idPrefix string) (domvec.DeleteResult, error)
}
