package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/joesaby/gardenqa/store"
)

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 32

// maxEmbedRunes bounds the text embedded per node.
const maxEmbedRunes = 2000

// Embedder produces vectors for texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the vector side of the store.
type Index interface {
	NodesWithoutEmbedding(ctx context.Context, label string) ([]store.IndexableNode, error)
	InsertNodeEmbedding(ctx context.Context, nodeID int64, embedding []float32) error
}

// IndexEmbeddings embeds every node of label that has no vector yet and
// returns how many were stored. A failed batch falls back to embedding its
// texts one by one so a single bad text does not lose the batch. It fails
// only when every node failed.
func IndexEmbeddings(ctx context.Context, idx Index, emb Embedder, label string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	nodes, err := idx.NodesWithoutEmbedding(ctx, label)
	if err != nil {
		return 0, fmt.Errorf("listing nodes to index: %w", err)
	}
	if len(nodes) == 0 {
		return 0, nil
	}

	start := time.Now()
	var (
		stored int
		errs   *multierror.Error
	)
	save := func(n store.IndexableNode, v []float32) {
		if len(v) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s: empty embedding", n.Name))
			return
		}
		if err := idx.InsertNodeEmbedding(ctx, n.ID, v); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", n.Name, err))
			return
		}
		stored++
	}

	for i := 0; i < len(nodes); i += batchSize {
		batch := nodes[i:min(i+batchSize, len(nodes))]
		texts := make([]string, len(batch))
		for j, n := range batch {
			texts[j] = embedText(n)
		}

		vecs, err := emb.Embed(ctx, texts)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(batch))
		}
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			slog.Warn("seed: embedding batch failed, falling back to individual",
				"batch_start", i, "batch_end", i+len(batch), "error", err)
			for j, n := range batch {
				single, serr := emb.Embed(ctx, texts[j:j+1])
				if serr != nil {
					errs = multierror.Append(errs, fmt.Errorf("%s: %w", n.Name, serr))
					continue
				}
				if len(single) == 0 {
					errs = multierror.Append(errs, fmt.Errorf("%s: no embedding returned", n.Name))
					continue
				}
				save(n, single[0])
			}
			continue
		}
		for j, n := range batch {
			save(n, vecs[j])
		}
	}

	if stored == 0 {
		return 0, fmt.Errorf("all %d nodes failed embedding: %w", len(nodes), errs.ErrorOrNil())
	}
	if err := errs.ErrorOrNil(); err != nil {
		slog.Warn("seed: some embeddings failed", "failed", len(nodes)-stored, "total", len(nodes), "error", err)
	}
	slog.Info("seed: embeddings indexed",
		"label", label, "stored", stored,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return stored, nil
}

// embedText is the name followed by the description, truncated.
func embedText(n store.IndexableNode) string {
	text := n.Name
	if n.Text != "" {
		text += ": " + n.Text
	}
	if r := []rune(text); len(r) > maxEmbedRunes {
		text = string(r[:maxEmbedRunes])
	}
	return text
}
