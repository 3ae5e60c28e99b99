// Package ocrtest provides scriptable OCR engines for tests.
package ocrtest

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/deckscan/internal/ocr"
)

// ErrEngine is the failure returned by failing fakes.
var ErrEngine = errors.New("fake engine failure")

// Engine is a fake ocr.Engine. Recognize returns Text for every bitmap
// unless a failure is configured.
type Engine struct {
	Text       string
	Confidence float64
	// FailInit makes NewSession fail.
	FailInit bool
	// FailRecognize makes every Recognize call fail.
	FailRecognize bool
	// Delay is slept inside Recognize, honouring cancellation.
	Delay time.Duration

	sessions  atomic.Int32
	closes    atomic.Int32
	calls     atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	mu        sync.Mutex
	languages []string
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return "fake" }

// NewSession implements ocr.Engine.
func (e *Engine) NewSession(language string) (ocr.Session, error) {
	e.mu.Lock()
	e.languages = append(e.languages, language)
	e.mu.Unlock()
	e.sessions.Add(1)
	if e.FailInit {
		return nil, ErrEngine
	}
	return &session{engine: e}, nil
}

// Sessions returns how many sessions were requested.
func (e *Engine) Sessions() int { return int(e.sessions.Load()) }

// Closes returns how many sessions were closed.
func (e *Engine) Closes() int { return int(e.closes.Load()) }

// Calls returns how many Recognize calls were made.
func (e *Engine) Calls() int { return int(e.calls.Load()) }

// MaxConcurrent returns the highest number of overlapping Recognize calls.
func (e *Engine) MaxConcurrent() int { return int(e.maxFlight.Load()) }

// Languages returns the languages sessions were created with.
func (e *Engine) Languages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.languages...)
}

type session struct {
	engine *Engine
}

func (s *session) Recognize(ctx context.Context, _ image.Image) (ocr.Recognition, error) {
	e := s.engine
	e.calls.Add(1)
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		m := e.maxFlight.Load()
		if n <= m || e.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return ocr.Recognition{}, ctx.Err()
		}
	}
	if e.FailRecognize {
		return ocr.Recognition{}, ErrEngine
	}
	conf := e.Confidence
	if conf == 0 && e.Text != "" {
		conf = 0.9
	}
	return ocr.Recognition{Text: e.Text, Confidence: conf}, nil
}

func (s *session) Close() error {
	s.engine.closes.Add(1)
	return nil
}
