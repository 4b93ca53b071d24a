package main

import "fmt"

// ValidationError reports a missing or malformed request field. Routes map
// it to a 400 response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UpstreamScrapeError surfaces a scrape-actor failure unchanged to the
// caller. There is no retry.
type UpstreamScrapeError struct {
	Query string
	Err   error
}

func (e *UpstreamScrapeError) Error() string {
	return fmt.Sprintf("scrape actor failed for query %q: %v", e.Query, e.Err)
}

func (e *UpstreamScrapeError) Unwrap() error { return e.Err }

// FetchError classifies a per-article failure. It never crosses the fetch
// client boundary as an error value; it is flattened into the
// ArticleRecord's error string.
type FetchError struct {
	URL    string
	Stage  string // "validate", "download", "parse"
	Err    error
	Status int // non-zero for HTTP status failures
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: HTTP %d", e.Stage, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigLoadError reports an unreadable optional config file. Callers
// degrade to defaults with a warning rather than failing.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// Pipeline sentinels. The route layer maps ErrNoSearchResults to 404 and
// ErrNoURLs to 400.
var (
	ErrNoSearchResults = fmt.Errorf("no search results found")
	ErrNoURLs          = fmt.Errorf("no URLs found in search results")
)
