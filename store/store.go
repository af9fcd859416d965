// Package store holds the graph query interface and its embedded SQLite
// implementation. Nodes and edges live in two tables with JSON property
// bags; query ASTs are compiled to SQL over them.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
)

func init() {
	sqlite_vec.Auto()
}

// Store wraps the SQLite database holding the gardening graph.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

var _ Client = (*Store)(nil)
var _ VectorIndex = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and
// initialises the graph schema including the sqlite-vec table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, &Error{Op: "open", Class: ErrUnavailable, Cause: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Op: "ping", Class: ErrUnavailable, Cause: err}
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// VerifyConnectivity pings the database.
func (s *Store) VerifyConnectivity(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &Error{Op: "ping", Class: ErrUnavailable, Cause: err}
	}
	return nil
}

// Session checks a dedicated connection out of the pool. The connection
// returns to the pool when the session is closed.
func (s *Store) Session(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &Error{Op: "session", Class: ErrUnavailable, Cause: err}
	}
	return &sqliteSession{conn: conn}, nil
}

type sqliteSession struct {
	conn *sql.Conn
}

func (ss *sqliteSession) Close() error {
	return ss.conn.Close()
}

func (ss *sqliteSession) Run(ctx context.Context, t query.Template, params query.Params) ([]graph.Record, error) {
	q, ok := t.(*query.Query)
	if !ok {
		return nil, &Error{Op: "run", Class: ErrUnsupported, Message: fmt.Sprintf("%T cannot run on the embedded store", t)}
	}

	cq, err := compile(q)
	if err != nil {
		return nil, err
	}

	if missing := MissingParams(q, params); len(missing) > 0 {
		return nil, &Error{
			Op:      "run",
			Code:    "ParameterMissing",
			Class:   ErrParameterMismatch,
			Message: fmt.Sprintf("expected parameter(s): %v", missing),
		}
	}

	args := make([]any, 0, len(cq.params)+len(cq.literals))
	for _, name := range cq.params {
		v, err := bindValue(params[name], cq.listParams[name])
		if err != nil {
			return nil, &Error{Op: "bind", Class: ErrParameterMismatch, Message: name, Cause: err}
		}
		args = append(args, sql.Named(name, v))
	}
	for i, v := range cq.literals {
		args = append(args, sql.Named(fmt.Sprintf("lit%d", i), v))
	}

	slog.Debug("store: run", "sql", cq.sql)

	rows, err := ss.conn.QueryContext(ctx, cq.sql, args...)
	if err != nil {
		return nil, classify("run", err)
	}
	defer rows.Close()

	var out []graph.Record
	keys := make([]string, len(cq.columns))
	for i, c := range cq.columns {
		keys[i] = c.alias
	}
	for rows.Next() {
		raw := make([]any, len(cq.columns))
		ptrs := make([]any, len(cq.columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify("scan", err)
		}
		values := make([]any, len(raw))
		for i, c := range cq.columns {
			v, err := decodeColumn(c.kind, raw[i])
			if err != nil {
				return nil, fmt.Errorf("decoding column %s: %w", c.alias, err)
			}
			values[i] = v
		}
		out = append(out, graph.NewRecord(keys, values))
	}
	if err := rows.Err(); err != nil {
		return nil, classify("rows", err)
	}
	return out, nil
}

func decodeColumn(kind columnKind, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch kind {
	case colNode:
		s, _ := v.(string)
		var e graph.Entity
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, err
		}
		return &e, nil
	case colRel:
		s, _ := v.(string)
		var r graph.Relationship
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, err
		}
		return &r, nil
	}
	return v, nil
}

// classify maps driver errors onto the store error classes.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) {
		return &Error{Op: op, Class: ErrUnavailable, Cause: err}
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return &Error{Op: op, Code: se.Code.Error(), Class: ErrUnavailable, Cause: err}
		case sqlite3.ErrRange:
			return &Error{Op: op, Code: se.Code.Error(), Class: ErrParameterMismatch, Cause: err}
		}
		return &Error{Op: op, Code: se.Code.Error(), Class: ErrSyntax, Cause: err}
	}
	return &Error{Op: op, Class: ErrSyntax, Cause: err}
}

// --- Graph writes (seeding only; the query path is read-only) ---

// UpsertNode inserts a node or merges its properties into the existing
// node with the same label and name. Returns the node ID.
func (s *Store) UpsertNode(ctx context.Context, e graph.Entity) (int64, error) {
	if e.Label == "" || e.Name == "" {
		return 0, fmt.Errorf("store: node needs a label and a name")
	}
	props, err := marshalProps(e.Properties)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO nodes (label, name, properties)
		VALUES (?, ?, json(?))
		ON CONFLICT(label, name) DO UPDATE SET
			properties = json_patch(nodes.properties, excluded.properties)
		RETURNING id
	`, e.Label, e.Name, props).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpsertRelationship links two existing nodes. Endpoint labels are implied
// by the relation type.
func (s *Store) UpsertRelationship(ctx context.Context, r graph.Relationship) (int64, error) {
	srcLabel, tgtLabel, ok := graph.Endpoints(r.Type)
	if !ok {
		return 0, fmt.Errorf("store: unknown relation type %q", r.Type)
	}
	props, err := marshalProps(r.Properties)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		srcID, err := nodeID(ctx, tx, srcLabel, r.Source)
		if err != nil {
			return err
		}
		tgtID, err := nodeID(ctx, tx, tgtLabel, r.Target)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO edges (source_id, target_id, type, properties)
			VALUES (?, ?, ?, json(?))
			ON CONFLICT(source_id, target_id, type) DO UPDATE SET
				properties = json_patch(edges.properties, excluded.properties)
			RETURNING id
		`, srcID, tgtID, r.Type, props).Scan(&id)
	})
	return id, err
}

// ErrNodeNotFound is returned when a relationship endpoint does not exist.
var ErrNodeNotFound = errors.New("store: node not found")

func nodeID(ctx context.Context, tx *sql.Tx, label, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM nodes WHERE label = ? AND name = ?", label, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s %q", ErrNodeNotFound, label, name)
	}
	return id, err
}

// NodeID looks up a node by label and exact name.
func (s *Store) NodeID(ctx context.Context, label, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM nodes WHERE label = ? AND name = ?", label, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s %q", ErrNodeNotFound, label, name)
	}
	return id, err
}

func marshalProps(p map[string]any) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding properties: %w", err)
	}
	return string(b), nil
}

// --- Embedding operations ---

// IndexableNode is a node whose description can be embedded.
type IndexableNode struct {
	ID   int64
	Name string
	Text string
}

// NodesWithoutEmbedding lists nodes of a label that have no vector yet.
func (s *Store) NodesWithoutEmbedding(ctx context.Context, label string) ([]IndexableNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.name, COALESCE(json_extract(n.properties, '$.description'), '')
		FROM nodes n
		WHERE n.label = ? AND n.id NOT IN (SELECT node_id FROM vec_nodes)
		ORDER BY n.id
	`, label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexableNode
	for rows.Next() {
		var n IndexableNode
		if err := rows.Scan(&n.ID, &n.Name, &n.Text); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// InsertNodeEmbedding stores a vector embedding for a node.
func (s *Store) InsertNodeEmbedding(ctx context.Context, nodeID int64, embedding []float32) error {
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("store: embedding has %d dimensions, want %d", len(embedding), s.embeddingDim)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_nodes (node_id, embedding) VALUES (?, ?)",
		nodeID, serializeFloat32(embedding))
	return err
}

// SimilarNodes performs a KNN search over node embeddings. An empty label
// matches every label.
func (s *Store) SimilarNodes(ctx context.Context, embedding []float32, label string, k int) ([]Similar, error) {
	if k <= 0 {
		return nil, nil
	}
	// vec0 filters after the KNN step, so over-fetch when filtering by label.
	fetch := k
	if label != "" {
		fetch = k * 4
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.distance, n.label, n.name, n.properties
		FROM vec_nodes v
		JOIN nodes n ON n.id = v.node_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(embedding), fetch)
	if err != nil {
		return nil, classify("similar", err)
	}
	defer rows.Close()

	var out []Similar
	for rows.Next() {
		var (
			sim      Similar
			distance float64
			props    string
		)
		if err := rows.Scan(&distance, &sim.Entity.Label, &sim.Entity.Name, &props); err != nil {
			return nil, err
		}
		if label != "" && sim.Entity.Label != label {
			continue
		}
		if err := json.Unmarshal([]byte(props), &sim.Entity.Properties); err != nil {
			return nil, fmt.Errorf("decoding properties of %s: %w", sim.Entity.Name, err)
		}
		sim.Score = 1.0 - distance
		out = append(out, sim)
		if len(out) == k {
			break
		}
	}
	return out, rows.Err()
}

// --- Stats ---

// Stats summarises the graph contents.
type Stats struct {
	Nodes      map[string]int `json:"nodes"`
	Edges      map[string]int `json:"edges"`
	Embeddings int            `json:"embeddings"`
}

// Stats counts nodes per label, edges per type and stored embeddings.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Nodes: map[string]int{}, Edges: map[string]int{}}
	if err := s.countInto(ctx, "SELECT label, COUNT(*) FROM nodes GROUP BY label", st.Nodes); err != nil {
		return nil, err
	}
	if err := s.countInto(ctx, "SELECT type, COUNT(*) FROM edges GROUP BY type", st.Edges); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_nodes").Scan(&st.Embeddings); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) countInto(ctx context.Context, q string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		into[k] = n
	}
	return rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
