package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/multierr"

	"github.com/dtnitsch/pagespeed-ai/pkg/caching"
	"github.com/dtnitsch/pagespeed-ai/pkg/cssrules"
)

// DefaultUserAgent mimics a desktop browser; some sites refuse bare clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Fetcher struct {
	client    *http.Client
	userAgent string
	cache     *caching.Cache
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithCache serves fresh bodies from c and stores every successful fetch.
func WithCache(c *caching.Cache) Option {
	return func(f *Fetcher) {
		f.cache = c
	}
}

func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetHTML fetches and parses a page, returning the document and raw body.
func (f *Fetcher) GetHTML(ctx context.Context, url string) (*goquery.Document, []byte, error) {
	body, err := f.GetBytes(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, body, nil
}

// GetBytes fetches url, returning an error for any non-200 status.
func (f *Fetcher) GetBytes(ctx context.Context, url string) ([]byte, error) {
	if f.cache != nil {
		if data, ok := f.cache.Get(url); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s, status code: %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if f.cache != nil {
		// a cache write failure only costs a refetch next time
		_ = f.cache.Set(url, body)
	}
	return body, nil
}

type sheetJob struct {
	index int
	url   string
}

type sheetResult struct {
	index int
	sheet cssrules.Stylesheet
	err   error
}

// FetchStylesheets downloads urls with a pool of workers. Sheets come back in
// input order; failed sheets are left out and their errors combined.
func (f *Fetcher) FetchStylesheets(ctx context.Context, urls []string, workers int) ([]cssrules.Stylesheet, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(urls) {
		workers = len(urls)
	}

	jobs := make(chan sheetJob, len(urls))
	results := make(chan sheetResult, len(urls))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				body, err := f.GetBytes(ctx, job.url)
				results <- sheetResult{
					index: job.index,
					sheet: cssrules.Stylesheet{Origin: job.url, Text: string(body)},
					err:   err,
				}
			}
		}()
	}

	for i, u := range urls {
		jobs <- sheetJob{index: i, url: u}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*cssrules.Stylesheet, len(urls))
	var errs error
	for r := range results {
		if r.err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stylesheet %s: %w", r.sheet.Origin, r.err))
			continue
		}
		sheet := r.sheet
		ordered[r.index] = &sheet
	}

	sheets := make([]cssrules.Stylesheet, 0, len(urls))
	for _, s := range ordered {
		if s != nil {
			sheets = append(sheets, *s)
		}
	}
	return sheets, errs
}
