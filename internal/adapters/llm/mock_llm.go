package llm

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

var _ domain.Generator = (*MockLLM)(nil)

// MockLLM is a scripted Generator for local mode and tests. Scripted replies
// are consumed in order; once they run out it narrates the last turn back.
type MockLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []domain.GenerateRequest
}

func NewMockLLM(replies ...string) *MockLLM {
	return &MockLLM{replies: replies}
}

// FailWith makes every following call fail with err. Pass nil to recover.
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Requests returns the requests received so far.
func (m *MockLLM) Requests() []domain.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GenerateRequest(nil), m.requests...)
}

func (m *MockLLM) Model() string { return "mock-gm" }

func (m *MockLLM) Generate(_ context.Context, req domain.GenerateRequest) (*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}

	var text string
	if len(m.replies) > 0 {
		text, m.replies = m.replies[0], m.replies[1:]
	} else {
		last := ""
		if n := len(req.Turns); n > 0 {
			last = req.Turns[n-1].Text
		}
		text = fmt.Sprintf("The Game Master considers your move. %q echoes through the hall.", last)
	}
	return &domain.Generation{Text: text, Model: m.Model(), TokensUsed: len(req.Turns)}, nil
}

func (m *MockLLM) Stream(ctx context.Context, req domain.GenerateRequest) iter.Seq2[string, error] {
	gen, err := m.Generate(ctx, req)
	if err != nil {
		return errStream(err)
	}
	return ChunkText(gen.Text, ChunkSize)
}
