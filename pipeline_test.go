package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newTestPipeline wires a pipeline against an actor stub that returns one
// organic result per articleURL, a fetcher that will hit those URLs, and
// an analyzer backed by the given completion stub.
func newTestPipeline(t *testing.T, articleURLs []string, complete completionFunc) (*Pipeline, *Settings) {
	t.Helper()

	organic := make([]map[string]any, 0, len(articleURLs))
	for _, u := range articleURLs {
		organic = append(organic, map[string]any{"url": u})
	}
	actorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal([]map[string]any{{"organicResults": organic}})
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}))
	t.Cleanup(actorServer.Close)

	settings := &Settings{}
	applySettingsFloors(settings)
	settings.Server.OutputDirectory = filepath.Join(t.TempDir(), "output")
	settings.Server.ReputableSourcesPath = filepath.Join(t.TempDir(), "missing_sources.json")

	pipeline := NewPipeline(
		newTestSearchClient(actorServer.URL),
		newTestFetcher(),
		newTestAnalyzer(complete),
		settings,
	)
	return pipeline, settings
}

func writeSourcesFile(t *testing.T, websites []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reputable_sources.json")
	data, _ := json.Marshal(map[string][]string{"websites": websites})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildQuery(t *testing.T) {
	pipeline, settings := newTestPipeline(t, nil, nil)
	settings.Server.ReputableSourcesPath = writeSourcesFile(t, []string{"example.com", "other.org"})

	query, warning := pipeline.buildQuery("climate summit", true)
	if warning != "" {
		t.Errorf("unexpected warning: %q", warning)
	}
	if query != "climate summit site:example.com OR site:other.org" {
		t.Errorf("query = %q", query)
	}

	query, warning = pipeline.buildQuery("climate summit", false)
	if query != "climate summit" || warning != "" {
		t.Errorf("disabled sources gave query %q, warning %q", query, warning)
	}
}

func TestBuildQueryDegradesOnMissingFile(t *testing.T) {
	pipeline, settings := newTestPipeline(t, nil, nil)
	settings.Server.ReputableSourcesPath = filepath.Join(t.TempDir(), "nope.json")

	query, warning := pipeline.buildQuery("climate summit", true)
	if query != "climate summit" {
		t.Errorf("query = %q, want the unmodified base query", query)
	}
	if warning == "" {
		t.Error("missing sources file produced no warning")
	}
}

func TestPipelineRun(t *testing.T) {
	articleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, testArticleHTML)
	}))
	defer articleServer.Close()

	report := AnalysisReport{
		OverallAssessment: OverallAssessment{MisleadingRiskScore: 5, Summary: "Accurate."},
	}
	reportJSON, _ := json.Marshal(report)

	pipeline, settings := newTestPipeline(t,
		[]string{articleServer.URL + "/a", articleServer.URL + "/b"},
		func(system, user string, maxTokens int, temperature float64) (string, error) {
			return string(reportJSON), nil
		})
	settings.Server.ReputableSourcesPath = writeSourcesFile(t, []string{"example.com"})

	save := true
	result, err := pipeline.Run(context.Background(), SearchAndFetchRequest{
		Query:      "transit budget",
		SaveToFile: &save,
		TargetArticle: &TargetArticle{
			Title: "Target", Text: "The budget passed.", URL: "https://t.example", Date: "2025-06-10",
		},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !result.Success {
		t.Error("result success = false")
	}
	if result.RunID == "" {
		t.Error("run id is empty")
	}
	if result.OriginalQuery != "transit budget" {
		t.Errorf("original query = %q", result.OriginalQuery)
	}
	if !strings.Contains(result.GoogleSearchQuery, "site:example.com") {
		t.Errorf("google search query = %q, want site filter applied", result.GoogleSearchQuery)
	}
	if result.ArticlesFetched != 2 || result.ArticlesFailed != 0 {
		t.Errorf("fetched/failed = %d/%d, want 2/0", result.ArticlesFetched, result.ArticlesFailed)
	}
	if result.ClaimsAnalysis == nil || !result.ClaimsAnalysis.Success {
		t.Fatalf("claims analysis = %+v, want success", result.ClaimsAnalysis)
	}
	if result.TargetArticle == nil || result.TargetArticle.Title != "Target" {
		t.Errorf("target article meta = %+v", result.TargetArticle)
	}

	if result.SavedToFile == "" {
		t.Fatal("saved_to_file is empty")
	}
	if _, err := os.Stat(result.SavedToFile); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
	base := filepath.Base(result.SavedToFile)
	if !strings.HasPrefix(base, "search_results_transit_budget_") || !strings.HasSuffix(base, ".json") {
		t.Errorf("saved filename = %q", base)
	}
}

func TestPipelineRunWithoutTarget(t *testing.T) {
	articleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, testArticleHTML)
	}))
	defer articleServer.Close()

	pipeline, _ := newTestPipeline(t, []string{articleServer.URL},
		func(system, user string, maxTokens int, temperature float64) (string, error) {
			t.Error("analyzer called without a target article")
			return "", nil
		})

	save := false
	result, err := pipeline.Run(context.Background(), SearchAndFetchRequest{
		Query:      "transit budget",
		SaveToFile: &save,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.ClaimsAnalysis == nil || result.ClaimsAnalysis.Success {
		t.Fatal("claims analysis should report the missing target")
	}
	if !strings.Contains(result.ClaimsAnalysis.Message, "No target article provided") {
		t.Errorf("message = %q", result.ClaimsAnalysis.Message)
	}
	if result.SavedToFile != "" {
		t.Errorf("saved_to_file = %q, want empty when saving disabled", result.SavedToFile)
	}
}

func TestPipelineRunNoResults(t *testing.T) {
	actorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer actorServer.Close()

	settings := &Settings{}
	applySettingsFloors(settings)
	pipeline := NewPipeline(newTestSearchClient(actorServer.URL), newTestFetcher(), newTestAnalyzer(nil), settings)

	save := false
	useSources := false
	_, err := pipeline.Run(context.Background(), SearchAndFetchRequest{
		Query: "anything", SaveToFile: &save, UseReputableSources: &useSources,
	})
	if err == nil {
		t.Fatal("Run succeeded with zero search results")
	}
	if !strings.Contains(err.Error(), "no search results") {
		t.Errorf("error = %q", err)
	}
}

func TestPipelineRunNoURLs(t *testing.T) {
	actorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"organicResults": []}]`))
	}))
	defer actorServer.Close()

	settings := &Settings{}
	applySettingsFloors(settings)
	pipeline := NewPipeline(newTestSearchClient(actorServer.URL), newTestFetcher(), newTestAnalyzer(nil), settings)

	save := false
	useSources := false
	_, err := pipeline.Run(context.Background(), SearchAndFetchRequest{
		Query: "anything", SaveToFile: &save, UseReputableSources: &useSources,
	})
	if err == nil {
		t.Fatal("Run succeeded with no extractable URLs")
	}
	if !strings.Contains(err.Error(), "no URLs") {
		t.Errorf("error = %q", err)
	}
}

func TestPipelineRunStream(t *testing.T) {
	articleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, testArticleHTML)
	}))
	defer articleServer.Close()

	pipeline, _ := newTestPipeline(t, []string{articleServer.URL},
		func(system, user string, maxTokens int, temperature float64) (string, error) {
			if strings.HasPrefix(user, "Based on this sentence-by-sentence analysis") {
				return "Summary.", nil
			}
			data, _ := json.Marshal([]SentenceReview{{Index: 1, Sentence: "The budget passed.", Verdict: VerdictSupported}})
			return string(data), nil
		})

	useSources := false
	var events []StreamEvent
	pipeline.RunStream(context.Background(), SearchAndFetchRequest{
		Query:               "transit budget",
		UseReputableSources: &useSources,
		TargetArticle:       &TargetArticle{Title: "Target", Text: "The budget passed.", Date: "2025-06-10"},
	}, func(ev StreamEvent) bool {
		events = append(events, ev)
		return true
	})

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}

	want := []string{
		EventStatus, EventStatus, EventStatus, EventStatus, EventStatus,
		EventProgress,
		EventStatus, EventFetchSummary,
		EventStatus,
		EventAnalysisStart, EventSentenceReview, EventGeneratingSummary, EventAnalysisComplete,
		EventStatus, EventComplete,
	}
	if len(types) != len(want) {
		t.Fatalf("got %d events %v, want %d %v", len(types), types, len(want), want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (sequence %v)", i, types[i], want[i], types)
		}
	}

	summary, ok := events[7].Data.(FetchSummary)
	if !ok {
		t.Fatalf("fetch_summary data has type %T", events[7].Data)
	}
	if summary.ArticlesFetched != 1 || summary.URLsExtracted != 1 {
		t.Errorf("fetch summary = %+v", summary)
	}
}

func TestPipelineRunStreamSearchError(t *testing.T) {
	actorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer actorServer.Close()

	settings := &Settings{}
	applySettingsFloors(settings)
	pipeline := NewPipeline(newTestSearchClient(actorServer.URL), newTestFetcher(), newTestAnalyzer(nil), settings)

	useSources := false
	var events []StreamEvent
	pipeline.RunStream(context.Background(), SearchAndFetchRequest{
		Query: "anything", UseReputableSources: &useSources,
	}, func(ev StreamEvent) bool {
		events = append(events, ev)
		return true
	})

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("last event type = %q, want %q", last.Type, EventError)
	}
	if !strings.Contains(last.Message, "scrape actor failed") {
		t.Errorf("error message = %q", last.Message)
	}
}

func TestPipelineRunStreamConsumerGone(t *testing.T) {
	pipeline, _ := newTestPipeline(t, nil, nil)

	count := 0
	pipeline.RunStream(context.Background(), SearchAndFetchRequest{Query: "anything"}, func(ev StreamEvent) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("emit called %d times after consumer left, want 1", count)
	}
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"climate summit", "climate_summit"},
		{"a/b\\c'd", "abcd"},
		{strings.Repeat("long query ", 10), strings.Repeat("long_query_", 10)[:50]},
	}

	for _, tt := range tests {
		if got := sanitizeQuery(tt.query); got != tt.want {
			t.Errorf("sanitizeQuery(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	var req SearchAndFetchRequest
	req.applyDefaults()

	if req.Query != defaultStreamQuery {
		t.Errorf("default query = %q", req.Query)
	}
	if req.MaxResults != 10 || req.MaxArticlesToFetch != 10 {
		t.Errorf("defaults = %d/%d, want 10/10", req.MaxResults, req.MaxArticlesToFetch)
	}
	if !req.saveToFile() || !req.useReputableSources() {
		t.Error("absent booleans should default to true")
	}

	off := false
	req.SaveToFile = &off
	req.UseReputableSources = &off
	if req.saveToFile() || req.useReputableSources() {
		t.Error("explicit false must not be overridden")
	}
}
