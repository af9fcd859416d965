package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
)

// Error classes returned by every backend. Match them with errors.Is.
var (
	// ErrUnavailable is returned when the store cannot be reached or a
	// session cannot be opened.
	ErrUnavailable = errors.New("store: graph store unavailable")

	// ErrParameterMismatch is returned when a query references a parameter
	// that was not bound, or a bound value has the wrong shape.
	ErrParameterMismatch = errors.New("store: query parameter mismatch")

	// ErrSyntax is returned for queries the backend rejects as malformed.
	ErrSyntax = errors.New("store: malformed query")

	// ErrUnsupported is returned when a backend cannot execute a template
	// kind, e.g. raw Cypher on the embedded store.
	ErrUnsupported = errors.New("store: unsupported query template")
)

// Client is a handle on a graph store. Implementations are safe for
// concurrent use; sessions are not.
type Client interface {
	// Session opens a unit of work. Callers must Close it.
	Session(ctx context.Context) (Session, error)

	// VerifyConnectivity checks the store is reachable.
	VerifyConnectivity(ctx context.Context) error

	// Close releases every resource held by the client.
	Close() error
}

// Session runs queries. It is released with Close on every exit path.
type Session interface {
	Run(ctx context.Context, t query.Template, params query.Params) ([]graph.Record, error)
	Close() error
}

// Error is a classified backend error. Class is one of the sentinel errors
// above and Cause is the driver error, if any.
type Error struct {
	Op      string
	Code    string
	Message string
	Class   error
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%v: %s [%s]: %s", e.Class, e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%v: %s: %s", e.Class, e.Op, msg)
}

// Unwrap exposes both the class and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Cause}
}

// MissingParams returns the names t references that params does not bind.
// A key present with a nil value counts as bound.
func MissingParams(t query.Template, params query.Params) []string {
	var missing []string
	for _, name := range t.Params() {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Similar is a node returned by a vector similarity lookup.
type Similar struct {
	Entity graph.Entity `json:"entity"`
	Score  float64      `json:"score"`
}

// VectorIndex finds nodes whose embedded description is close to a query
// embedding.
type VectorIndex interface {
	SimilarNodes(ctx context.Context, embedding []float32, label string, k int) ([]Similar, error)
}
