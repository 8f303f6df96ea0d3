// Package testutil provides fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/streamshort/backend/internal/insight"
	"github.com/streamshort/backend/internal/models"
	"github.com/streamshort/backend/internal/preview"
)

// StubGenerator returns a fixed result and records every call.
type StubGenerator struct {
	mu     sync.Mutex
	Result insight.Insights
	Calls  []GenerateCall
}

// GenerateCall is one recorded Generate invocation.
type GenerateCall struct {
	Filename string
	Size     int64
}

// NewStubGenerator returns a generator that always yields res.
func NewStubGenerator(res models.InsightResult) *StubGenerator {
	return &StubGenerator{Result: insight.Insights{InsightResult: res}}
}

// NewFallbackStub returns a generator that behaves like a failed model call.
func NewFallbackStub() *StubGenerator {
	return &StubGenerator{Result: insight.Insights{Synthetic: true, Cause: errors.New("unparsable response")}}
}

func (g *StubGenerator) Generate(_ context.Context, filename string, size int64) insight.Insights {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Calls = append(g.Calls, GenerateCall{Filename: filename, Size: size})
	if g.Result.Synthetic {
		return insight.Insights{InsightResult: insight.Fallback(filename), Synthetic: true, Cause: g.Result.Cause}
	}
	out := g.Result
	out.Tags = append([]string(nil), g.Result.Tags...)
	return out
}

// CallCount returns how many times Generate ran.
func (g *StubGenerator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// FailingPreviews refuses to create references.
type FailingPreviews struct {
	Err error
}

func (p FailingPreviews) Create(string, io.Reader) (*preview.Reference, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return nil, preview.ErrLimitReached
}

func (p FailingPreviews) Release(string) bool { return false }
