package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"
)

// ErrTerminated is returned when recognition is requested after Terminate.
var ErrTerminated = errors.New("ocr session terminated")

// Hooks observe session lifecycle events. Nil fields are ignored.
type Hooks struct {
	SessionStarted func(engine string)
	SessionFailed  func(engine string, err error)
	Recognized     func(engine string, empty bool)
	Terminated     func(engine string)
}

// Adapter lazily creates one engine session and serializes recognition on
// it. An Adapter belongs to a single extraction call.
type Adapter struct {
	engine  Engine
	cfg     Config
	logger  *slog.Logger
	hooks   Hooks
	timeout time.Duration

	// slot is held while the engine is in use. Waiting for it honours the
	// caller's context.
	slot         chan struct{}
	session      Session
	initErr      error
	terminated   bool
	terminations int
}

// NewAdapter returns an adapter for engine. No session is created until
// the first recognition.
func NewAdapter(engine Engine, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &Adapter{engine: engine, cfg: cfg, logger: logger, slot: make(chan struct{}, 1)}
}

// SetHooks installs lifecycle hooks. It must be called before first use.
func (a *Adapter) SetHooks(h Hooks) {
	a.hooks = h
}

// SetTimeout bounds each recognition call. The deadline starts once the
// call holds the session, so time spent waiting behind other pages does
// not count. Zero disables it.
func (a *Adapter) SetTimeout(d time.Duration) {
	a.timeout = d
}

func (a *Adapter) acquire(ctx context.Context) error {
	select {
	case a.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) release() {
	<-a.slot
}

func (a *Adapter) lock() {
	a.slot <- struct{}{}
}

// EnsureSession creates the engine session on first call. A failure is
// returned as *InitError and remembered; later calls return it without
// retrying.
func (a *Adapter) EnsureSession() error {
	a.lock()
	defer a.release()
	return a.ensureLocked()
}

func (a *Adapter) ensureLocked() error {
	if a.terminated {
		return ErrTerminated
	}
	if a.session != nil {
		return nil
	}
	if a.initErr != nil {
		return a.initErr
	}

	name := a.engineName()
	lang, err := NormalizeLanguage(a.cfg.Language)
	if err == nil && a.engine == nil {
		err = errors.New("no OCR engine configured")
	}
	var s Session
	if err == nil {
		s, err = a.engine.NewSession(lang)
	}
	if err == nil && s == nil {
		err = errors.New("engine returned no session")
	}
	if err != nil {
		a.initErr = &InitError{Engine: name, Language: a.cfg.Language, Err: err}
		a.logger.Warn("OCR engine unavailable, pages without text will stay empty", "engine", name, "error", err)
		if a.hooks.SessionFailed != nil {
			a.hooks.SessionFailed(name, err)
		}
		return a.initErr
	}

	a.session = s
	a.logger.Debug("OCR session started", "engine", name, "language", lang)
	if a.hooks.SessionStarted != nil {
		a.hooks.SessionStarted(name)
	}
	return nil
}

// Recognize runs recognition on img and returns the trimmed text and its
// confidence. Empty or low confidence output is not an error: it yields
// ("", 0, nil). Engine failures are returned as *RecognitionError.
func (a *Adapter) Recognize(ctx context.Context, img image.Image) (string, float64, error) {
	if img == nil {
		return "", 0, &RecognitionError{Err: errors.New("nil bitmap")}
	}
	if a.cfg.Preprocess {
		img = Preprocess(img)
	}

	if err := a.acquire(ctx); err != nil {
		return "", 0, err
	}
	defer a.release()

	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if err := a.ensureLocked(); err != nil {
		return "", 0, err
	}

	rctx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	rec, err := a.recognizeLocked(rctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		if rctx.Err() != nil {
			return "", 0, rctx.Err()
		}
		return "", 0, &RecognitionError{Err: err}
	}

	text := strings.TrimSpace(rec.Text)
	empty := text == "" || rec.Confidence < a.cfg.MinConfidence
	if a.hooks.Recognized != nil {
		a.hooks.Recognized(a.engineName(), empty)
	}
	if empty {
		return "", 0, nil
	}
	return text, rec.Confidence, nil
}

func (a *Adapter) recognizeLocked(ctx context.Context, img image.Image) (rec Recognition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return a.session.Recognize(ctx, img)
}

// Terminate releases the session. It is a no-op when no session was
// created and safe to call more than once. Every call is counted by
// Terminations; the Terminated hook fires only when a session is closed.
func (a *Adapter) Terminate() error {
	a.lock()
	defer a.release()

	a.terminations++
	a.terminated = true
	if a.session == nil {
		return nil
	}
	if a.hooks.Terminated != nil {
		a.hooks.Terminated(a.engineName())
	}
	s := a.session
	a.session = nil
	if err := s.Close(); err != nil {
		return fmt.Errorf("close OCR session: %w", err)
	}
	a.logger.Debug("OCR session terminated")
	return nil
}

// Initialized reports whether a session is currently open.
func (a *Adapter) Initialized() bool {
	a.lock()
	defer a.release()
	return a.session != nil
}

// Terminations returns how many times Terminate was called.
func (a *Adapter) Terminations() int {
	a.lock()
	defer a.release()
	return a.terminations
}

func (a *Adapter) engineName() string {
	if a.engine == nil {
		return "none"
	}
	return a.engine.Name()
}
