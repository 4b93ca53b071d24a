package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// SearchClient runs the third-party scraping actor that executes Google
// searches and returns result items. The actor is invoked through the
// platform's synchronous run endpoint, which blocks until the job
// completes and responds with the job's dataset items.
type SearchClient struct {
	token   string
	actorID string
	baseURL string
	client  *http.Client
}

// NewSearchClient creates a search client for the configured actor.
func NewSearchClient(token string, cfg SearchSettings) *SearchClient {
	return &SearchClient{
		token:   token,
		actorID: cfg.ActorID,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// defaultActorInput mirrors the actor's documented defaults. Callers
// override fields individually; the merge is shallow.
func defaultActorInput() map[string]any {
	return map[string]any{
		"queries":                       "javascript\ntypescript\npython",
		"resultsPerPage":                100,
		"maxPagesPerQuery":              1,
		"aiMode":                        "aiModeOff",
		"maximumLeadsEnrichmentRecords": 0,
		"focusOnPaidAds":                false,
		"searchLanguage":                "",
		"languageCode":                  "",
		"forceExactMatch":               false,
		"wordsInTitle":                  []string{},
		"wordsInText":                   []string{},
		"wordsInUrl":                    []string{},
		"mobileResults":                 false,
		"includeUnfilteredResults":      false,
		"saveHtml":                      false,
		"saveHtmlToKeyValueStore":       true,
		"includeIcons":                  false,
	}
}

// RunActor submits a synchronous scrape job with the caller's overrides
// merged over the default input, and returns all items from the job's
// result store. Any transport or job error is surfaced unchanged as an
// UpstreamScrapeError; there is no retry.
func (c *SearchClient) RunActor(ctx context.Context, overrides map[string]any) ([]SearchResult, error) {
	input := defaultActorInput()
	for k, v := range overrides {
		input[k] = v
	}
	query, _ := input["queries"].(string)

	body, err := json.Marshal(input)
	if err != nil {
		return nil, &UpstreamScrapeError{Query: query, Err: fmt.Errorf("marshaling actor input: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s", c.baseURL, c.actorID, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamScrapeError{Query: query, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("→ Starting actor run for query %q", query)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UpstreamScrapeError{Query: query, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &UpstreamScrapeError{
			Query: query,
			Err:   fmt.Errorf("actor run returned %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}

	var items []SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, &UpstreamScrapeError{Query: query, Err: fmt.Errorf("decoding dataset items: %w", err)}
	}

	log.Printf("✓ Actor run completed: %d items", len(items))
	return items, nil
}

// SearchNews searches with one or more queries. Multiple queries are
// joined with newlines, which is how the actor batches them.
func (c *SearchClient) SearchNews(ctx context.Context, queries []string, options map[string]any) ([]SearchResult, error) {
	params := map[string]any{
		"queries":                       strings.Join(queries, "\n"),
	}
	for k, v := range options {
		params[k] = v
	}
	return c.RunActor(ctx, params)
}

// SearchForBiasAnalysis searches a topic with the wider preset used when
// collecting source material for analysis: an extra result page, saved
// HTML, and unfiltered results.
func (c *SearchClient) SearchForBiasAnalysis(ctx context.Context, topic string, maxResults int) ([]SearchResult, error) {
	return c.RunActor(ctx, map[string]any{
		"queries":                       topic,
		"resultsPerPage":                maxResults,
		"maxPagesPerQuery":              2,
		"saveHtml":                      true,
		"includeUnfilteredResults":      true,
	})
}

// ExtractURLs pulls candidate article URLs out of the actor's result
// items, keeping at most maxPerResult organic results per item. Order
// follows the result items.
func ExtractURLs(results []SearchResult, maxPerResult int) []string {
	var urls []string
	for _, result := range results {
		organic, ok := result["organicResults"].([]any)
		if !ok {
			continue
		}
		for i, entry := range organic {
			if i >= maxPerResult {
				break
			}
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if u, ok := m["url"].(string); ok && u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}
