package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"tcross-assistant/internal/domain/ports/adapter"
	"tcross-assistant/internal/infra/logging"
)

const (
	DefaultChunkSize = 1000
	DefaultBatchSize = 64
)

// ChunkStore is satisfied by *Store.
type ChunkStore interface {
	ReplaceSource(ctx context.Context, source string, chunks []Chunk) error
}

// Indexer turns manual text files into embedded chunks.
type Indexer struct {
	store     ChunkStore
	embedder  adapter.Embedder
	chunkSize int
	batchSize int
	log       *zerolog.Logger
}

func NewIndexer(store ChunkStore, embedder adapter.Embedder, chunkSize, batchSize int, logger *zerolog.Logger) *Indexer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{store: store, embedder: embedder, chunkSize: chunkSize, batchSize: batchSize, log: logger}
}

// IndexFiles (re)indexes each file under its base name and returns the
// total number of chunks written.
func (x *Indexer) IndexFiles(ctx context.Context, paths []string) (int, error) {
	defer logging.TraceDuration(x.log, "Indexer.IndexFiles")()

	total := 0
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return total, fmt.Errorf("read %s: %w", p, err)
		}
		n, err := x.IndexText(ctx, filepath.Base(p), string(b))
		if err != nil {
			return total, fmt.Errorf("index %s: %w", p, err)
		}
		x.log.Info().Str("source", filepath.Base(p)).Int("chunks", n).Msg("manual indexed")
		total += n
	}
	return total, nil
}

// IndexText tags text with its source, splits it and stores the embedded
// chunks in place of any previous version of source.
func (x *Indexer) IndexText(ctx context.Context, source, text string) (int, error) {
	parts := SplitChunks(fmt.Sprintf("[FONTE: %s]\n%s", source, text), x.chunkSize)
	chunks := make([]Chunk, 0, len(parts))
	for start := 0; start < len(parts); start += x.batchSize {
		end := min(start+x.batchSize, len(parts))
		vecs, err := x.embedder.Embed(ctx, parts[start:end])
		if err != nil {
			return 0, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return 0, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs))
		}
		for i, v := range vecs {
			chunks = append(chunks, Chunk{Source: source, Position: start + i, Content: parts[start+i], Embedding: v})
		}
	}
	if err := x.store.ReplaceSource(ctx, source, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// SplitChunks cuts text into consecutive pieces of at most size runes.
func SplitChunks(text string, size int) []string {
	r := []rune(text)
	if len(r) == 0 || size <= 0 {
		return nil
	}
	out := make([]string, 0, (len(r)+size-1)/size)
	for i := 0; i < len(r); i += size {
		out = append(out, string(r[i:min(i+size, len(r))]))
	}
	return out
}
