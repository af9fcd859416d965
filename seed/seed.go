// Package seed loads gardening graphs into the embedded store and indexes
// plant embeddings for similarity search.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/joesaby/gardenqa/graph"
)

// ErrUnsupportedFormat is returned for seed files with an unknown extension.
var ErrUnsupportedFormat = errors.New("seed: unsupported file format")

// Graph is a serialised gardening graph.
type Graph struct {
	Nodes         []graph.Entity       `json:"nodes" yaml:"nodes"`
	Relationships []graph.Relationship `json:"relationships" yaml:"relationships"`
}

// Writer receives seeded nodes and relationships. *store.Store implements
// it with idempotent upserts.
type Writer interface {
	UpsertNode(ctx context.Context, e graph.Entity) (int64, error)
	UpsertRelationship(ctx context.Context, r graph.Relationship) (int64, error)
}

// Stats counts what a load wrote.
type Stats struct {
	Nodes         int `json:"nodes"`
	Relationships int `json:"relationships"`
}

// ReadFile reads a graph from a .json, .yaml/.yml or .xlsx file.
func ReadFile(path string) (*Graph, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path)
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ReadJSON(f)
	}
	return ReadYAML(f)
}

// ReadJSON decodes a graph document.
func ReadJSON(r io.Reader) (*Graph, error) {
	var g Graph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("decoding seed json: %w", err)
	}
	return &g, nil
}

// ReadYAML decodes a graph document written as YAML.
func ReadYAML(r io.Reader) (*Graph, error) {
	var g Graph
	if err := yaml.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("decoding seed yaml: %w", err)
	}
	return &g, nil
}

// Load writes every node, then every relationship. A bad row does not stop
// the load; all failures are returned together and Stats counts what was
// written.
func Load(ctx context.Context, w Writer, g *Graph) (Stats, error) {
	start := time.Now()
	var (
		stats Stats
		errs  *multierror.Error
	)
	for _, n := range g.Nodes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, err := w.UpsertNode(ctx, n); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("node %s %q: %w", n.Label, n.Name, err))
			continue
		}
		stats.Nodes++
	}
	for _, r := range g.Relationships {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, err := w.UpsertRelationship(ctx, r); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("relationship %s -[%s]-> %s: %w", r.Source, r.Type, r.Target, err))
			continue
		}
		stats.Relationships++
	}

	slog.Info("seed: load complete",
		"nodes", stats.Nodes,
		"relationships", stats.Relationships,
		"failed", len(g.Nodes)+len(g.Relationships)-stats.Nodes-stats.Relationships,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return stats, errs.ErrorOrNil()
}
