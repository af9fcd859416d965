// Package neo4jstore implements store.Client on a Neo4j database over Bolt.
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/spf13/cast"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/store"
)

// ErrMissingURI indicates the graph URI is not provided.
var ErrMissingURI = errors.New("neo4jstore: graph URI is required")

// Options configures the Neo4j client.
type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

// Client runs read sessions against Neo4j.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ store.Client = (*Client)(nil)

// New creates a driver. It does not contact the server; call
// VerifyConnectivity for that.
func New(opts Options) (*Client, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}
	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *config.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
	})
	if err != nil {
		return nil, &store.Error{Op: "connect", Class: store.ErrUnavailable, Cause: err}
	}
	return &Client{driver: driver, database: opts.Database}, nil
}

// VerifyConnectivity checks the server is reachable with the configured
// credentials.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return &store.Error{Op: "verify", Class: store.ErrUnavailable, Cause: err}
	}
	return nil
}

// Close shuts the driver down.
func (c *Client) Close() error {
	return c.driver.Close(context.Background())
}

// Session opens a read session.
func (c *Client) Session(ctx context.Context) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})
	return &session{s: s}, nil
}

type session struct {
	s neo4j.SessionWithContext
}

func (s *session) Close() error {
	return s.s.Close(context.Background())
}

func (s *session) Run(ctx context.Context, t query.Template, params query.Params) ([]graph.Record, error) {
	if q, ok := t.(*query.Query); ok {
		if err := q.Validate(); err != nil {
			return nil, &store.Error{Op: "compile", Class: store.ErrSyntax, Cause: err}
		}
	}

	result, err := s.s.Run(ctx, t.Cypher(), map[string]any(params))
	if err != nil {
		return nil, classify("run", err)
	}

	var out []graph.Record
	for result.Next(ctx) {
		rec := result.Record()
		values := make([]any, len(rec.Values))
		for i, v := range rec.Values {
			values[i] = convert(v)
		}
		out = append(out, graph.NewRecord(rec.Keys, values))
	}
	if err := result.Err(); err != nil {
		return nil, classify("fetch", err)
	}
	return out, nil
}

// classify maps driver errors onto the store error classes.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ne *neo4j.Neo4jError
	if errors.As(err, &ne) {
		switch {
		case ne.Code == "Neo.ClientError.Statement.ParameterMissing",
			ne.Code == "Neo.ClientError.Statement.TypeError":
			return &store.Error{Op: op, Code: ne.Code, Message: ne.Msg, Class: store.ErrParameterMismatch, Cause: err}
		case strings.HasPrefix(ne.Code, "Neo.ClientError.Statement."):
			return &store.Error{Op: op, Code: ne.Code, Message: ne.Msg, Class: store.ErrSyntax, Cause: err}
		case strings.HasPrefix(ne.Code, "Neo.TransientError."),
			strings.HasPrefix(ne.Code, "Neo.ClientError.Security."),
			ne.Code == "Neo.ClientError.Database.DatabaseNotFound":
			return &store.Error{Op: op, Code: ne.Code, Message: ne.Msg, Class: store.ErrUnavailable, Cause: err}
		}
		return &store.Error{Op: op, Code: ne.Code, Message: ne.Msg, Class: store.ErrSyntax, Cause: err}
	}
	var ce *neo4j.ConnectivityError
	if errors.As(err, &ce) {
		return &store.Error{Op: op, Class: store.ErrUnavailable, Cause: err}
	}
	return &store.Error{Op: op, Class: store.ErrUnavailable, Cause: err, Message: fmt.Sprintf("%v", err)}
}

// convert turns driver values into the graph record union.
func convert(v any) any {
	switch t := v.(type) {
	case neo4j.Node:
		props := make(map[string]any, len(t.Props))
		name := ""
		for k, pv := range t.Props {
			if k == graph.PropName {
				name = cast.ToString(pv)
				continue
			}
			props[k] = convert(pv)
		}
		label := ""
		if len(t.Labels) > 0 {
			label = t.Labels[0]
		}
		return &graph.Entity{Label: label, Name: name, Properties: props}
	case neo4j.Relationship:
		props := make(map[string]any, len(t.Props))
		for k, pv := range t.Props {
			props[k] = convert(pv)
		}
		return &graph.Relationship{Type: t.Type, Properties: props}
	case map[string]any:
		raw := make(graph.Raw, len(t))
		for k, mv := range t {
			raw[k] = convert(mv)
		}
		return raw
	case []any:
		out := make([]any, len(t))
		for i, lv := range t {
			out[i] = convert(lv)
		}
		return out
	}
	return v
}
