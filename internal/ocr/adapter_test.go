package ocr_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/ocr/ocrtest"
	"github.com/MeKo-Tech/deckscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bitmap() image.Image {
	return testutil.TextImage("INVOICE")
}

func TestAdapter_LazySession(t *testing.T) {
	engine := &ocrtest.Engine{Text: "INVOICE"}
	a := ocr.NewAdapter(engine, ocr.DefaultConfig(), nil)

	assert.False(t, a.Initialized())
	assert.Equal(t, 0, engine.Sessions())

	text, conf, err := a.Recognize(context.Background(), bitmap())
	require.NoError(t, err)
	assert.Equal(t, "INVOICE", text)
	assert.InDelta(t, 0.9, conf, 1e-9)
	assert.True(t, a.Initialized())

	_, _, err = a.Recognize(context.Background(), bitmap())
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Sessions(), "session is reused")
	assert.Equal(t, []string{"eng"}, engine.Languages())

	require.NoError(t, a.Terminate())
	assert.Equal(t, 1, engine.Closes())
	assert.False(t, a.Initialized())
}

func TestAdapter_EnsureSessionIdempotent(t *testing.T) {
	engine := &ocrtest.Engine{}
	a := ocr.NewAdapter(engine, ocr.DefaultConfig(), nil)

	require.NoError(t, a.EnsureSession())
	require.NoError(t, a.EnsureSession())
	assert.Equal(t, 1, engine.Sessions())
}

func TestAdapter_InitFailureIsCached(t *testing.T) {
	engine := &ocrtest.Engine{FailInit: true}
	a := ocr.NewAdapter(engine, ocr.DefaultConfig(), nil)

	err := a.EnsureSession()
	var initErr *ocr.InitError
	require.True(t, errors.As(err, &initErr))
	assert.ErrorIs(t, err, ocrtest.ErrEngine)
	assert.Equal(t, "fake", initErr.Engine)

	_, _, err = a.Recognize(context.Background(), bitmap())
	assert.True(t, errors.As(err, &initErr))
	assert.Equal(t, 1, engine.Sessions(), "failed init is not retried")
	assert.Equal(t, 0, engine.Calls())
}

func TestAdapter_NilEngine(t *testing.T) {
	a := ocr.NewAdapter(nil, ocr.DefaultConfig(), nil)
	var initErr *ocr.InitError
	assert.True(t, errors.As(a.EnsureSession(), &initErr))
	assert.NoError(t, a.Terminate())
}

func TestAdapter_RecognitionError(t *testing.T) {
	engine := &ocrtest.Engine{FailRecognize: true}
	a := ocr.NewAdapter(engine, ocr.DefaultConfig(), nil)

	_, _, err := a.Recognize(context.Background(), bitmap())
	var recErr *ocr.RecognitionError
	require.True(t, errors.As(err, &recErr))
	assert.ErrorIs(t, err, ocrtest.ErrEngine)
}

func TestAdapter_EmptyAndLowConfidence(t *testing.T) {
	t.Run("whitespace only", func(t *testing.T) {
		a := ocr.NewAdapter(&ocrtest.Engine{Text: " \n\t"}, ocr.DefaultConfig(), nil)
		text, conf, err := a.Recognize(context.Background(), bitmap())
		require.NoError(t, err)
		assert.Empty(t, text)
		assert.Zero(t, conf)
	})

	t.Run("below threshold", func(t *testing.T) {
		cfg := ocr.DefaultConfig()
		cfg.MinConfidence = 0.5
		a := ocr.NewAdapter(&ocrtest.Engine{Text: "n0ise", Confidence: 0.2}, cfg, nil)
		text, conf, err := a.Recognize(context.Background(), bitmap())
		require.NoError(t, err)
		assert.Empty(t, text)
		assert.Zero(t, conf)
	})
}

func TestAdapter_TerminateWithoutSession(t *testing.T) {
	engine := &ocrtest.Engine{}
	a := ocr.NewAdapter(engine, ocr.DefaultConfig(), nil)

	require.NoError(t, a.Terminate())
	require.NoError(t, a.Terminate())
	assert.Equal(t, 0, engine.Sessions())
	assert.Equal(t, 0, engine.Closes())
	assert.Equal(t, 2, a.Terminations())

	_, _, err := a.Recognize(context.Background(), bitmap())
	assert.ErrorIs(t, err, ocr.ErrTerminated)
}

func TestAdapter_SerializesRecognition(t *testing.T) {
	engine := &ocrtest.Engine{Text: "x", Delay: 2 * time.Millisecond}
	cfg := ocr.DefaultConfig()
	cfg.Preprocess = false
	a := ocr.NewAdapter(engine, cfg, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = a.Recognize(context.Background(), bitmap())
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, engine.Calls())
	assert.Equal(t, 1, engine.MaxConcurrent())
	assert.Equal(t, 1, engine.Sessions())
}

func TestAdapter_Cancelled(t *testing.T) {
	a := ocr.NewAdapter(&ocrtest.Engine{Text: "x"}, ocr.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := a.Recognize(ctx, bitmap())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdapter_Hooks(t *testing.T) {
	var started, failed, recognized, terminated int
	hooks := ocr.Hooks{
		SessionStarted: func(string) { started++ },
		SessionFailed:  func(string, error) { failed++ },
		Recognized:     func(string, bool) { recognized++ },
		Terminated:     func(string) { terminated++ },
	}

	a := ocr.NewAdapter(&ocrtest.Engine{Text: "x"}, ocr.DefaultConfig(), nil)
	a.SetHooks(hooks)
	_, _, _ = a.Recognize(context.Background(), bitmap())

	b := ocr.NewAdapter(&ocrtest.Engine{FailInit: true}, ocr.DefaultConfig(), nil)
	b.SetHooks(hooks)
	_ = b.EnsureSession()
	_ = a.Terminate()
	_ = b.Terminate()

	assert.Equal(t, 1, started)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, recognized)
	assert.Equal(t, 1, terminated, "only the adapter with an open session reports termination")
	assert.Equal(t, 1, b.Terminations())
}

func TestAdapter_TerminatedHookNeedsSession(t *testing.T) {
	var terminated int
	a := ocr.NewAdapter(&ocrtest.Engine{Text: "x"}, ocr.DefaultConfig(), nil)
	a.SetHooks(ocr.Hooks{Terminated: func(string) { terminated++ }})

	require.NoError(t, a.Terminate())
	assert.Zero(t, terminated)
	assert.Equal(t, 1, a.Terminations())
}

func TestAdapter_TimeoutStartsWithSession(t *testing.T) {
	engine := &ocrtest.Engine{Text: "x", Delay: 40 * time.Millisecond}
	cfg := ocr.DefaultConfig()
	cfg.Preprocess = false
	a := ocr.NewAdapter(engine, cfg, nil)
	a.SetTimeout(150 * time.Millisecond)

	// Six callers queue for 240ms in total; each holds the session for 40ms.
	errs := make([]error, 6)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = a.Recognize(context.Background(), bitmap())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}
	assert.Equal(t, 6, engine.Calls())
}

func TestAdapter_TimeoutExceeded(t *testing.T) {
	a := ocr.NewAdapter(&ocrtest.Engine{Text: "x", Delay: 2 * time.Second}, ocr.DefaultConfig(), nil)
	a.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	_, _, err := a.Recognize(context.Background(), bitmap())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	var recErr *ocr.RecognitionError
	assert.False(t, errors.As(err, &recErr))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdapter_WaitingCallerCanBeCancelled(t *testing.T) {
	engine := &ocrtest.Engine{Text: "x", Delay: 500 * time.Millisecond}
	cfg := ocr.DefaultConfig()
	cfg.Preprocess = false
	a := ocr.NewAdapter(engine, cfg, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = a.Recognize(context.Background(), bitmap())
	}()
	require.Eventually(t, func() bool { return engine.Calls() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, _, err := a.Recognize(ctx, bitmap())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, 1, engine.Calls())
	<-done
}
