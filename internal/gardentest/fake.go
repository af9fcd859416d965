package gardentest

import (
	"context"
	"sync"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/store"
)

// Run is one recorded Session.Run call.
type Run struct {
	Template query.Template
	Params   query.Params
}

// FakeClient is a store.Client whose results come from Handler. It records
// every run and counts sessions so tests can assert on release.
type FakeClient struct {
	Handler    func(t query.Template, p query.Params) ([]graph.Record, error)
	SessionErr error

	mu     sync.Mutex
	runs   []Run
	opened int
	closed int
}

var _ store.Client = (*FakeClient)(nil)

func (f *FakeClient) Session(ctx context.Context) (store.Session, error) {
	if f.SessionErr != nil {
		return nil, f.SessionErr
	}
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return &fakeSession{f: f}, nil
}

func (f *FakeClient) VerifyConnectivity(ctx context.Context) error { return f.SessionErr }

func (f *FakeClient) Close() error { return nil }

// Runs returns the recorded runs.
func (f *FakeClient) Runs() []Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Run(nil), f.runs...)
}

// Sessions returns how many sessions were opened and closed.
func (f *FakeClient) Sessions() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

type fakeSession struct {
	f *FakeClient
}

func (s *fakeSession) Run(ctx context.Context, t query.Template, p query.Params) ([]graph.Record, error) {
	s.f.mu.Lock()
	s.f.runs = append(s.f.runs, Run{Template: t, Params: p.Clone()})
	s.f.mu.Unlock()
	if s.f.Handler == nil {
		return nil, nil
	}
	return s.f.Handler(t, p)
}

func (s *fakeSession) Close() error {
	s.f.mu.Lock()
	s.f.closed++
	s.f.mu.Unlock()
	return nil
}

// PlantRecord builds a record projecting a Plant node under "plant".
func PlantRecord(name string, props map[string]any) graph.Record {
	return graph.NewRecord([]string{"plant"}, []any{&graph.Entity{
		Label:      graph.LabelPlant,
		Name:       name,
		Properties: props,
	}})
}
