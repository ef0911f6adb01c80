package repository

import "context"

// RenderResult is what the headless-render collaborator hands back for one
// URL: the script-executed DOM, image candidates, any structured data the
// page exposed after rendering, and optional scrolling screenshots for the
// vision fallback.
type RenderResult struct {
	HTML           string
	ImageURLs      []string
	StructuredData []string
	Screenshots    [][]byte
}

// Renderer defines the contract for the browser-rendering collaborator.
type Renderer interface {
	Render(ctx context.Context, url string) (*RenderResult, error)
}
