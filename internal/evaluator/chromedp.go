// Package evaluator runs the embedded script payload through a real
// JavaScript engine and returns its JSON value. The core treats both
// implementations as external request/response collaborators.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// payloadPath selects the structured section list out of the evaluated
// context object.
const payloadPath = "models.nmTitleUI.data.sectionData"

// ChromedpConfig controls the headless browser evaluator.
type ChromedpConfig struct {
	MaxParallel int
	Timeout     time.Duration
}

// Chromedp evaluates payload scripts in tabs of a shared headless
// browser.
type Chromedp struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
	timeout         time.Duration
	logger          *zap.Logger
}

// NewChromedp launches the shared browser. Fails fast when no browser
// can be started.
func NewChromedp(cfg ChromedpConfig, logger *zap.Logger) (*Chromedp, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Chromedp{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, maxParallel),
		timeout:         timeout,
		logger:          logger,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (e *Chromedp) Close() {
	if e == nil {
		return
	}
	e.browserCancel()
	e.allocatorCancel()
}

// Evaluate runs the payload script in a fresh tab and returns the
// section list serialized to JSON.
func (e *Chromedp) Evaluate(ctx context.Context, script string) (string, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return "", fmt.Errorf("acquire evaluate slot: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, e.timeout)
	defer cancelTask()

	// The slice is an assignment expression; running it in a sloppy
	// scope creates the context global, which the selector then reads.
	expr := script + "\n;JSON.stringify(reactContext." + payloadPath + ")"

	var out string
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(expr, &out)); err != nil {
		return "", fmt.Errorf("evaluate payload: %w", err)
	}
	return out, nil
}
