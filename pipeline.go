package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// defaultStreamQuery is used when a request omits the query.
const defaultStreamQuery = "Sean Combs Sentenced to More Than 4 Years in Prison After Apologizing for 'Sick' Conduct"

const maxFilenameQueryLen = 50

// TargetArticle is the article under scrutiny, supplied by the caller
// (typically a browser extension) rather than fetched here.
type TargetArticle struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
	Date  string `json:"date"`
}

// SearchAndFetchRequest carries the combined pipeline's inputs. Pointer
// booleans distinguish "absent" from "false" so defaults apply only when
// the field is missing.
type SearchAndFetchRequest struct {
	Query               string         `json:"query"`
	MaxResults          int            `json:"maxResults"`
	MaxArticlesToFetch  int            `json:"maxArticlesToFetch"`
	SaveToFile          *bool          `json:"saveToFile"`
	UseReputableSources *bool          `json:"useReputableSources"`
	TargetArticle       *TargetArticle `json:"targetArticle"`
}

func (r *SearchAndFetchRequest) applyDefaults() {
	if r.Query == "" {
		r.Query = defaultStreamQuery
	}
	if r.MaxResults == 0 {
		r.MaxResults = 10
	}
	if r.MaxArticlesToFetch == 0 {
		r.MaxArticlesToFetch = 10
	}
}

func (r *SearchAndFetchRequest) saveToFile() bool {
	return r.SaveToFile == nil || *r.SaveToFile
}

func (r *SearchAndFetchRequest) useReputableSources() bool {
	return r.UseReputableSources == nil || *r.UseReputableSources
}

// FetchSummary condenses the pipeline outcome for responses and the SSE
// fetch_summary event.
type FetchSummary struct {
	OriginalQuery        string `json:"original_query"`
	GoogleSearchQuery    string `json:"google_search_query"`
	UsedReputableSources bool   `json:"used_reputable_sources"`
	SearchResultsCount   int    `json:"search_results_count"`
	URLsExtracted        int    `json:"urls_extracted"`
	ArticlesFetched      int    `json:"articles_fetched"`
	ArticlesFailed       int    `json:"articles_failed"`
}

// TargetArticleMeta identifies the analyzed article in responses.
type TargetArticleMeta struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date"`
}

// SearchAndFetchResult is the combined pipeline's response body.
type SearchAndFetchResult struct {
	Success              bool               `json:"success"`
	RunID                string             `json:"run_id"`
	OriginalQuery        string             `json:"original_query"`
	GoogleSearchQuery    string             `json:"google_search_query"`
	UsedReputableSources bool               `json:"used_reputable_sources"`
	Timestamp            string             `json:"timestamp"`
	SearchResultsCount   int                `json:"search_results_count"`
	URLsExtracted        int                `json:"urls_extracted"`
	ArticlesFetched      int                `json:"articles_fetched"`
	ArticlesFailed       int                `json:"articles_failed"`
	Articles             []*ArticleRecord   `json:"articles"`
	Failed               []*ArticleRecord   `json:"failed"`
	Summary              FetchSummary       `json:"summary"`
	ClaimsAnalysis       *AnalysisResult    `json:"claims_analysis,omitempty"`
	TargetArticle        *TargetArticleMeta `json:"target_article,omitempty"`
	SavedToFile          string             `json:"saved_to_file,omitempty"`
}

// Pipeline sequences the three clients: search for candidate URLs, fetch
// their articles, then analyze the target against the fetched references.
// All service objects are injected once at construction.
type Pipeline struct {
	search   *SearchClient
	fetcher  *ArticleFetcher
	analyzer *ClaimsAnalyzer
	settings *Settings
}

// NewPipeline wires the pipeline from its collaborating clients.
func NewPipeline(search *SearchClient, fetcher *ArticleFetcher, analyzer *ClaimsAnalyzer, settings *Settings) *Pipeline {
	return &Pipeline{search: search, fetcher: fetcher, analyzer: analyzer, settings: settings}
}

// buildQuery augments the base query with OR-joined site: filters from the
// reputable-sources file. A load failure degrades to the unmodified query
// and returns a warning message.
func (p *Pipeline) buildQuery(base string, useReputable bool) (query, warning string) {
	if !useReputable {
		return base, ""
	}
	websites, err := LoadReputableSources(p.settings.Server.ReputableSourcesPath)
	if err != nil {
		log.Printf("Warning: could not load reputable sources: %v", err)
		return base, fmt.Sprintf("Could not load reputable sources: %v", err)
	}
	if len(websites) == 0 {
		return base, ""
	}
	filters := make([]string, 0, len(websites))
	for _, site := range websites {
		filters = append(filters, "site:"+site)
	}
	return base + " " + strings.Join(filters, " OR "), ""
}

// partitionRecords splits fetch results into successes and failures,
// preserving order within each partition.
func partitionRecords(records []*ArticleRecord) (successful, failed []*ArticleRecord) {
	successful = make([]*ArticleRecord, 0, len(records))
	failed = make([]*ArticleRecord, 0)
	for _, record := range records {
		if record.Success {
			successful = append(successful, record)
		} else {
			failed = append(failed, record)
		}
	}
	return successful, failed
}

// referencesFrom converts fetched articles into analyzer reference inputs.
func referencesFrom(articles []*ArticleRecord) []ReferenceSource {
	refs := make([]ReferenceSource, 0, len(articles))
	for _, article := range articles {
		refs = append(refs, ReferenceSource{
			Title: article.Title,
			Text:  article.Text,
			Date:  article.PublishDate,
			URL:   article.URL,
		})
	}
	return refs
}

// Run executes the blocking search-and-fetch pipeline. ErrNoSearchResults
// and ErrNoURLs are the only error returns; everything downstream is
// reported inside the result.
func (p *Pipeline) Run(ctx context.Context, req SearchAndFetchRequest) (*SearchAndFetchResult, error) {
	req.applyDefaults()

	query, _ := p.buildQuery(req.Query, req.useReputableSources())

	results, err := p.search.RunActor(ctx, map[string]any{
		"queries":          query,
		"resultsPerPage":   req.MaxResults,
		"maxPagesPerQuery": 1,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w for query %q", ErrNoSearchResults, query)
	}

	urls := ExtractURLs(results, req.MaxArticlesToFetch)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w for query %q", ErrNoURLs, query)
	}

	records := p.fetcher.FetchMany(ctx, urls)
	successful, failed := partitionRecords(records)

	result := &SearchAndFetchResult{
		Success:              true,
		RunID:                uuid.New().String(),
		OriginalQuery:        req.Query,
		GoogleSearchQuery:    query,
		UsedReputableSources: req.useReputableSources(),
		Timestamp:            time.Now().Format(time.RFC3339),
		SearchResultsCount:   len(results),
		URLsExtracted:        len(urls),
		ArticlesFetched:      len(successful),
		ArticlesFailed:       len(failed),
		Articles:             successful,
		Failed:               failed,
		Summary: FetchSummary{
			OriginalQuery:        req.Query,
			GoogleSearchQuery:    query,
			UsedReputableSources: req.useReputableSources(),
			SearchResultsCount:   len(results),
			URLsExtracted:        len(urls),
			ArticlesFetched:      len(successful),
			ArticlesFailed:       len(failed),
		},
	}

	switch {
	case req.TargetArticle != nil && len(successful) >= 1:
		log.Printf("→ Analyzing claims against %d references", len(successful))
		target := req.TargetArticle
		result.ClaimsAnalysis = p.analyzer.Analyze(target.Title, target.Text, referencesFrom(successful), target.Date)
		result.TargetArticle = &TargetArticleMeta{Title: target.Title, URL: target.URL, Date: target.Date}
	case req.TargetArticle == nil:
		result.ClaimsAnalysis = &AnalysisResult{
			Success: false,
			Message: `No target article provided. Include "targetArticle" with title, text, url, and date in request.`,
		}
	default:
		result.ClaimsAnalysis = &AnalysisResult{
			Success: false,
			Message: fmt.Sprintf("Need at least 1 reference article for claims analysis. Got %d articles.", len(successful)),
		}
		result.TargetArticle = &TargetArticleMeta{
			Title: req.TargetArticle.Title,
			URL:   req.TargetArticle.URL,
			Date:  req.TargetArticle.Date,
		}
	}

	if req.saveToFile() {
		filename, err := p.saveResult(result, req.Query)
		if err != nil {
			log.Printf("Warning: saving results: %v", err)
		} else {
			result.SavedToFile = filename
		}
	}

	return result, nil
}

// RunStream executes the pipeline as a sequence of typed events. emit
// returns false when the consumer is gone; the pipeline stops promptly.
func (p *Pipeline) RunStream(ctx context.Context, req SearchAndFetchRequest, emit func(StreamEvent) bool) {
	req.applyDefaults()

	if !emit(StreamEvent{Type: EventStatus, Message: "Starting search and fetch..."}) {
		return
	}

	query, warning := p.buildQuery(req.Query, req.useReputableSources())
	if warning != "" {
		if !emit(StreamEvent{Type: EventWarning, Message: warning}) {
			return
		}
	}

	if !emit(StreamEvent{Type: EventStatus, Message: "Searching for articles..."}) {
		return
	}

	results, err := p.search.RunActor(ctx, map[string]any{
		"queries":          query,
		"resultsPerPage":   req.MaxResults,
		"maxPagesPerQuery": 1,
	})
	if err != nil {
		emit(StreamEvent{Type: EventError, Message: err.Error()})
		return
	}
	if len(results) == 0 {
		emit(StreamEvent{Type: EventError, Message: "No search results found"})
		return
	}

	if !emit(StreamEvent{Type: EventStatus, Message: fmt.Sprintf("Found %d search results", len(results))}) {
		return
	}

	urls := ExtractURLs(results, req.MaxArticlesToFetch)
	if len(urls) == 0 {
		emit(StreamEvent{Type: EventError, Message: "No URLs found in search results"})
		return
	}

	if !emit(StreamEvent{Type: EventStatus, Message: fmt.Sprintf("Extracted %d URLs", len(urls))}) {
		return
	}
	if !emit(StreamEvent{Type: EventStatus, Message: "Fetching article contents..."}) {
		return
	}

	var successful, failed []*ArticleRecord
	for i, u := range urls {
		if !emit(StreamEvent{
			Type:    EventProgress,
			Current: i + 1,
			Total:   len(urls),
			Message: fmt.Sprintf("Fetching article %d/%d", i+1, len(urls)),
		}) {
			return
		}
		record := p.fetcher.FetchOne(ctx, u)
		if record.Success {
			successful = append(successful, record)
		} else {
			failed = append(failed, record)
		}
	}

	if !emit(StreamEvent{Type: EventStatus, Message: fmt.Sprintf("Successfully fetched %d articles", len(successful))}) {
		return
	}

	if !emit(StreamEvent{
		Type: EventFetchSummary,
		Data: FetchSummary{
			OriginalQuery:        req.Query,
			GoogleSearchQuery:    query,
			UsedReputableSources: req.useReputableSources(),
			SearchResultsCount:   len(results),
			URLsExtracted:        len(urls),
			ArticlesFetched:      len(successful),
			ArticlesFailed:       len(failed),
		},
	}) {
		return
	}

	switch {
	case req.TargetArticle != nil && len(successful) >= 1:
		if !emit(StreamEvent{Type: EventStatus, Message: "Starting claims analysis..."}) {
			return
		}
		target := req.TargetArticle
		for ev := range p.analyzer.AnalyzeStreaming(ctx, target.Title, target.Text, referencesFrom(successful), target.Date) {
			if !emit(ev) {
				return
			}
		}
		if !emit(StreamEvent{Type: EventStatus, Message: "Analysis complete"}) {
			return
		}
	case req.TargetArticle == nil:
		if !emit(StreamEvent{Type: EventWarning, Message: "No target article provided"}) {
			return
		}
	default:
		if !emit(StreamEvent{Type: EventWarning, Message: fmt.Sprintf("Need at least 1 reference article, got %d", len(successful))}) {
			return
		}
	}

	emit(StreamEvent{Type: EventComplete})
}

// saveResult persists the pipeline output as a timestamped JSON file under
// the output directory.
func (p *Pipeline) saveResult(result *SearchAndFetchResult, baseQuery string) (string, error) {
	outputDir := p.settings.Server.OutputDirectory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("search_results_%s_%s.json", sanitizeQuery(baseQuery), timestamp))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling results: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("writing results file: %w", err)
	}

	log.Printf("✓ Saved results to %s", filename)
	return filename, nil
}

// sanitizeQuery makes a query safe for use in a filename: spaces become
// underscores, slashes and quotes are stripped, length is capped.
func sanitizeQuery(query string) string {
	sanitized := strings.ReplaceAll(query, " ", "_")
	sanitized = strings.ReplaceAll(sanitized, "/", "")
	sanitized = strings.ReplaceAll(sanitized, "\\", "")
	sanitized = strings.ReplaceAll(sanitized, "'", "")
	if len(sanitized) > maxFilenameQueryLen {
		sanitized = sanitized[:maxFilenameQueryLen]
	}
	return sanitized
}
