package vectorstore

import (
	"context"

	"tcross-assistant/internal/domain/ports/adapter"
)

var _ adapter.Retriever = NoopRetriever{}

// NoopRetriever is used when no manual index is configured.
type NoopRetriever struct{}

func (NoopRetriever) Search(ctx context.Context, query string, k int) ([]adapter.Passage, error) {
	return nil, nil
}
