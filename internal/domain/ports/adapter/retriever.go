package adapter

import "context"

// Passage is one chunk of reference text returned by a similarity search.
type Passage struct {
	Source  string
	Content string
	Score   float64
}

// Retriever looks up reference passages for a query. An empty result with a
// nil error means nothing relevant (or no index loaded).
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
}

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
