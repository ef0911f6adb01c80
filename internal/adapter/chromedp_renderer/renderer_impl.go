package chromedp_renderer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/user/recipe-extraction-service/internal/repository"
)

// Pages that execute scripts (web stories, JS-built recipe cards) need a
// real browser. The renderer returns everything the later cascade stages
// might use so one navigation serves all of them.
const maxScreenshots = 4

const collectImagesJS = `Array.from(document.querySelectorAll('img'))
	.map(i => i.currentSrc || i.src || i.dataset.src || '')
	.filter(s => s.startsWith('http'))
	.slice(0, 30)`

const collectStructuredDataJS = `Array.from(document.querySelectorAll("script[type='application/ld+json']"))
	.map(s => s.textContent)
	.filter(t => t && t.trim().length > 0)`

const pageHeightJS = `Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)`

// RendererImpl provides a concrete implementation for the Renderer
// interface using chromedp.
type RendererImpl struct {
	allocatorPool *sync.Pool
	timeout       time.Duration
}

// NewRenderer creates a new renderer implementation using chromedp.
func NewRenderer(maxConcurrency int, renderTimeout time.Duration) (repository.Renderer, error) {
	pool := &sync.Pool{
		New: func() interface{} {
			opts := append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", true),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
				chromedp.Flag("disable-dev-shm-usage", true),
				chromedp.UserAgent(`Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36`),
			)
			allocCtx, _ := chromedp.NewExecAllocator(context.Background(), opts...)
			return allocCtx
		},
	}

	// Pre-warm the pool
	for i := 0; i < maxConcurrency; i++ {
		allocCtx := pool.Get().(context.Context)
		pool.Put(allocCtx)
	}

	return &RendererImpl{
		allocatorPool: pool,
		timeout:       renderTimeout,
	}, nil
}

// Render navigates to the URL, waits for scripts to settle, and returns the
// rendered DOM, image candidates, post-render structured data, and a set of
// scrolling screenshots for the vision fallback.
func (r *RendererImpl) Render(ctx context.Context, url string) (*repository.RenderResult, error) {
	allocCtx := r.allocatorPool.Get().(context.Context)
	defer r.allocatorPool.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	taskCtx, cancel = context.WithTimeout(taskCtx, r.timeout)
	defer cancel()

	var (
		html           string
		imageURLs      []string
		structuredData []string
		pageHeight     float64
	)

	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		// Give client-side rendering a beat to settle before reading the DOM.
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
		chromedp.Evaluate(collectImagesJS, &imageURLs),
		chromedp.Evaluate(collectStructuredDataJS, &structuredData),
		chromedp.Evaluate(pageHeightJS, &pageHeight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", url, err)
	}

	screenshots, err := r.captureScrollingScreenshots(taskCtx, pageHeight)
	if err != nil {
		// Screenshots only feed the last-resort vision pass; rendering
		// without them is still a usable result.
		slog.Warn("Failed to capture screenshots", "url", url, "error", err)
	}

	return &repository.RenderResult{
		HTML:           html,
		ImageURLs:      imageURLs,
		StructuredData: structuredData,
		Screenshots:    screenshots,
	}, nil
}

// captureScrollingScreenshots takes up to maxScreenshots viewport captures,
// scrolling one viewport height between each, so the vision pass sees the
// whole page top to bottom.
func (r *RendererImpl) captureScrollingScreenshots(ctx context.Context, pageHeight float64) ([][]byte, error) {
	var viewportHeight float64
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.innerHeight`, &viewportHeight)); err != nil {
		return nil, err
	}
	if viewportHeight <= 0 {
		viewportHeight = 800
	}

	steps := int(pageHeight/viewportHeight) + 1
	if steps > maxScreenshots {
		steps = maxScreenshots
	}

	var shots [][]byte
	for i := 0; i < steps; i++ {
		scrollTo := fmt.Sprintf(`window.scrollTo(0, %f)`, float64(i)*viewportHeight)
		var shot []byte
		err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollTo, nil),
			chromedp.Sleep(300*time.Millisecond),
			chromedp.CaptureScreenshot(&shot),
		)
		if err != nil {
			return shots, err
		}
		shots = append(shots, shot)
	}
	return shots, nil
}
