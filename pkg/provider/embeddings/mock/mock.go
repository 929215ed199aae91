// Package mock provides a recording test double for embeddings.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/soyeonk/replique/pkg/provider/embeddings"
)

// EmbedCall records one Embed invocation.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// EmbedBatchCall records one EmbedBatch invocation. Texts is a copy.
type EmbedBatchCall struct {
	Ctx   context.Context
	Texts []string
}

// Provider is a recording mock for [embeddings.Provider]. Set the Result and
// Err fields to stage responses; every call is appended to the matching Calls
// field. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// EmbedResult and EmbedErr stage the Embed response.
	EmbedResult []float32
	EmbedErr    error

	// EmbedBatchResult and EmbedBatchErr stage the EmbedBatch response. A nil
	// result yields one nil vector per input so lengths still line up.
	EmbedBatchResult [][]float32
	EmbedBatchErr    error

	// DimensionsValue and ModelIDValue stage the metadata accessors.
	DimensionsValue int
	ModelIDValue    string

	EmbedCalls          []EmbedCall
	EmbedBatchCalls     []EmbedBatchCall
	DimensionsCallCount int
	ModelIDCallCount    int
}

var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	return p.EmbedResult, p.EmbedErr
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp})

	switch {
	case p.EmbedBatchErr != nil:
		return nil, p.EmbedBatchErr
	case p.EmbedBatchResult != nil:
		return p.EmbedBatchResult, nil
	default:
		return make([][]float32, len(texts)), nil
	}
}

func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DimensionsCallCount++
	return p.DimensionsValue
}

func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModelIDCallCount++
	return p.ModelIDValue
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
	p.DimensionsCallCount = 0
	p.ModelIDCallCount = 0
}
