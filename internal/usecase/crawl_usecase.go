package usecase

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/recipe-extraction-service/internal/repository"
	"github.com/user/recipe-extraction-service/pkg/metrics"
)

var (
	// ErrNoSitemap is returned when none of the conventional sitemap
	// locations yields a parseable sitemap. Fatal for the job.
	ErrNoSitemap = errors.New("no sitemap found for source URL")
	// ErrNoCandidates is returned when a sitemap parsed but every URL was
	// rejected by the pre-filters. Fatal for the job.
	ErrNoCandidates = errors.New("sitemap contains no candidate content URLs")
)

// Conventional sitemap locations, tried in order after the source URL
// itself. The first one that parses wins.
var sitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/wp-sitemap.xml",
	"/sitemap.php",
}

const nestedFetchConcurrency = 8

// Tier 1: cheap rejection by extension and admin-path substring. Binary
// assets, feeds, and commerce/account pages are never recipe content.
var rejectedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico",
	".css", ".js", ".pdf", ".zip", ".mp4", ".mov", ".webm",
	".xml", ".txt", ".json",
}

var rejectedSubstrings = []string{
	"/wp-admin", "/wp-login", "/wp-json", "/feed",
	"/cart", "/checkout", "/login", "/register", "/my-account",
	"/privacy", "/terms", "/contact", "/about",
}

// Tier 2: obviously-not-content URL shapes. Intentionally permissive
// overall: a false negative here is unrecoverable, a false positive only
// costs one classification call.
var rejectedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/\d+-(best|top|easy|quick)[-/]`),
	regexp.MustCompile(`-\d+-(things|reasons|ways|ideas|tips)\b`),
	regexp.MustCompile(`/(travel|lifestyle|diary|shopping|giveaway)[-/]`),
	regexp.MustCompile(`/page/\d+`),
	regexp.MustCompile(`/(tag|tags|category|categories|author|archives?)/`),
}

// CrawlSummary is what discovery reports back: the surviving candidate
// count and a capped sample for display.
type CrawlSummary struct {
	TotalCandidates int
	Sample          []string
}

// SitemapCrawler resolves a job's source URL to candidate content URLs:
// it locates a sitemap (following nested sitemap indexes), applies the
// two-tier pre-filter, persists the survivors to the job's raw pool in
// bounded batches, and moves the job into filtering.
type SitemapCrawler struct {
	fetcher   repository.PageFetcher
	pools     repository.URLPoolRepository
	jobs      repository.JobRepository
	chunkSize int
	sampleCap int
}

// NewSitemapCrawler creates a new SitemapCrawler use case.
func NewSitemapCrawler(
	fetcher repository.PageFetcher,
	pools repository.URLPoolRepository,
	jobs repository.JobRepository,
	chunkSize int,
	sampleCap int,
) *SitemapCrawler {
	return &SitemapCrawler{
		fetcher:   fetcher,
		pools:     pools,
		jobs:      jobs,
		chunkSize: chunkSize,
		sampleCap: sampleCap,
	}
}

// Run performs discovery for one job. On success the raw pool is populated,
// the chunk totals are stamped, and the job is in filtering. Errors are
// job-fatal; the caller fails the job with the returned message.
func (c *SitemapCrawler) Run(ctx context.Context, jobID, sourceURL string) (*CrawlSummary, error) {
	candidates, err := c.Discover(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	if err := c.pools.AppendRaw(ctx, jobID, candidates); err != nil {
		return nil, fmt.Errorf("failed to persist raw URL pool: %w", err)
	}

	totalChunks := TotalChunks(len(candidates), c.chunkSize)
	ok, err := c.jobs.BeginFiltering(ctx, jobID, len(candidates), totalChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to move job to filtering: %w", err)
	}
	if !ok {
		// Job left discovering_urls while we crawled (e.g. cancelled).
		// Nothing to classify.
		slog.Info("Job no longer awaiting discovery, dropping crawl result", "job_id", jobID)
		return &CrawlSummary{}, nil
	}

	metrics.URLsDiscoveredTotal.Add(float64(len(candidates)))

	sample := candidates
	if len(sample) > c.sampleCap {
		sample = sample[:c.sampleCap]
	}
	slog.Info("Sitemap discovery finished",
		"job_id", jobID,
		"candidates", len(candidates),
		"chunks", totalChunks,
	)
	return &CrawlSummary{TotalCandidates: len(candidates), Sample: sample}, nil
}

// Discover resolves the source URL to a filtered candidate URL list without
// touching job state.
func (c *SitemapCrawler) Discover(ctx context.Context, sourceURL string) ([]string, error) {
	base, err := url.ParseRequestURI(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL %q: %w", sourceURL, err)
	}

	locations := make([]string, 0, len(sitemapPaths)+1)
	locations = append(locations, sourceURL)
	root := base.Scheme + "://" + base.Host
	for _, p := range sitemapPaths {
		locations = append(locations, root+p)
	}

	for _, loc := range locations {
		urls, err := c.fetchSitemap(ctx, loc)
		if err != nil {
			slog.Debug("Sitemap candidate did not parse", "location", loc, "error", err)
			continue
		}
		slog.Info("Sitemap resolved", "location", loc, "urls", len(urls))
		return filterCandidates(urls), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoSitemap, sourceURL)
}

type sitemapIndexDoc struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSetDoc struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// fetchSitemap downloads and parses one sitemap document. A sitemap index
// fans out to its nested sitemaps concurrently, best-effort: a failed
// nested fetch is logged and skipped, never fatal for the others.
func (c *SitemapCrawler) fetchSitemap(ctx context.Context, location string) ([]string, error) {
	body, err := c.fetcher.FetchHTML(ctx, location)
	if err != nil {
		return nil, err
	}

	var index sitemapIndexDoc
	if err := xml.Unmarshal([]byte(body), &index); err == nil && len(index.Sitemaps) > 0 {
		return c.fetchNested(ctx, index), nil
	}

	var set urlSetDoc
	if err := xml.Unmarshal([]byte(body), &set); err != nil {
		return nil, fmt.Errorf("not a sitemap document: %w", err)
	}
	if len(set.URLs) == 0 {
		return nil, errors.New("sitemap urlset is empty")
	}

	urls := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

func (c *SitemapCrawler) fetchNested(ctx context.Context, index sitemapIndexDoc) []string {
	var (
		mu  sync.Mutex
		all []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nestedFetchConcurrency)
	for _, sm := range index.Sitemaps {
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		g.Go(func() error {
			urls, err := c.fetchSitemap(gctx, loc)
			if err != nil {
				// Partial results are acceptable.
				slog.Warn("Nested sitemap fetch failed, continuing with the rest", "location", loc, "error", err)
				return nil
			}
			mu.Lock()
			all = append(all, urls...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return all
}

// filterCandidates applies the two-tier pre-filter.
func filterCandidates(urls []string) []string {
	var out []string
	for _, u := range urls {
		if passesPreFilter(u) {
			out = append(out, u)
		}
	}
	return out
}

func passesPreFilter(rawURL string) bool {
	lower := strings.ToLower(rawURL)

	for _, ext := range rejectedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	for _, sub := range rejectedSubstrings {
		if strings.Contains(lower, sub) {
			return false
		}
	}
	for _, re := range rejectedPatterns {
		if re.MatchString(lower) {
			return false
		}
	}
	return true
}
