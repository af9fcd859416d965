package gardenqa

import (
	"errors"

	"github.com/joesaby/gardenqa/params"
	"github.com/joesaby/gardenqa/store"
)

var (
	// ErrStoreUnavailable is returned when the graph store cannot be
	// reached. It matches store.ErrUnavailable.
	ErrStoreUnavailable = store.ErrUnavailable

	// ErrMissingParameter is returned when a query parameter has neither a
	// value nor a default. It matches params.ErrMissingParameter.
	ErrMissingParameter = params.ErrMissingParameter

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("gardenqa: invalid configuration")

	// ErrEmptyQuestion is returned when a question has no text.
	ErrEmptyQuestion = errors.New("gardenqa: empty question")

	// ErrGenerationFailed is returned when the text generator fails.
	ErrGenerationFailed = errors.New("gardenqa: answer generation failed")

	// ErrNoEmbedder is returned when an operation needs an embedding
	// provider and none is configured.
	ErrNoEmbedder = errors.New("gardenqa: no embedding provider configured")

	// ErrReadOnlyStore is returned when seeding or indexing is attempted on
	// a store the engine cannot write to.
	ErrReadOnlyStore = errors.New("gardenqa: store does not support writes")

	// ErrClosed is returned when using an engine after Close.
	ErrClosed = errors.New("gardenqa: engine is closed")
)
