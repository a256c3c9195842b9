// Package mock provides a test double for the embeddings.Provider interface.
//
// Fixed vectors cover most tests; set EmbedFunc or EmbedBatchFunc when a test
// needs per-text vectors, for example to make knowledge retrieval rank
// deterministically.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
//	        if strings.Contains(text, "fraud") {
//	            return []float32{1, 0, 0}, nil
//	        }
//	        return []float32{0, 1, 0}, nil
//	    },
//	    DimensionsValue: 3,
//	    ModelIDValue:    "test-embed-v1",
//	}
package mock

import (
	"context"
	"sync"

	"github.com/conviai/convi/pkg/provider/embeddings"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Ctx is the context passed to Embed.
	Ctx context.Context
	// Text is the string passed to Embed.
	Text string
}

// EmbedBatchCall records a single invocation of EmbedBatch.
type EmbedBatchCall struct {
	// Ctx is the context passed to EmbedBatch.
	Ctx context.Context
	// Texts is a copy of the string slice passed to EmbedBatch.
	Texts []string
}

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EmbedFunc, if set, computes the result of Embed. Takes precedence over
	// EmbedResult/EmbedErr.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedResult is returned by Embed when EmbedFunc is nil. If nil, a
	// zero-length slice is returned.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed when
	// EmbedFunc is nil.
	EmbedErr error

	// EmbedBatchFunc, if set, computes the result of EmbedBatch. When nil,
	// EmbedBatch embeds each text individually through the Embed path, so a
	// test that only configures EmbedFunc still gets coherent batches.
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// DimensionsValue is returned by Dimensions. When 0, Dimensions falls
	// back to len(EmbedResult).
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	// EmbedCalls records every call to Embed in order, including the
	// per-text calls made by the default EmbedBatch.
	EmbedCalls []EmbedCall

	// EmbedBatchCalls records every call to EmbedBatch in order.
	EmbedBatchCalls []EmbedBatchCall
}

// Embed records the call and returns EmbedFunc's result, or
// EmbedResult/EmbedErr when no EmbedFunc is set.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	fn := p.EmbedFunc
	result, err := p.EmbedResult, p.EmbedErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return result, err
}

// EmbedBatch records the call and returns EmbedBatchFunc's result. When no
// EmbedBatchFunc is set it delegates to Embed per text, failing on the first
// per-text error.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp})
	fn := p.EmbedBatchFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

// Dimensions returns DimensionsValue, or len(EmbedResult) when unset.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DimensionsValue == 0 {
		return len(p.EmbedResult)
	}
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
