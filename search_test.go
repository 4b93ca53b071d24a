package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func newTestSearchClient(serverURL string) *SearchClient {
	return NewSearchClient("test-token", SearchSettings{
		ActorID:        "testActor",
		BaseURL:        serverURL,
		TimeoutSeconds: 5,
	})
}

func TestRunActor(t *testing.T) {
	var gotInput map[string]any
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&gotInput); err != nil {
			t.Errorf("decoding actor input: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"searchQuery": {"term": "climate policy"}, "organicResults": []}]`))
	}))
	defer server.Close()

	client := newTestSearchClient(server.URL)
	results, err := client.RunActor(context.Background(), map[string]any{
		"queries":        "climate policy",
		"resultsPerPage": 10,
	})
	if err != nil {
		t.Fatalf("RunActor returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("RunActor returned %d items, want 1", len(results))
	}

	if gotPath != "/v2/acts/testActor/run-sync-get-dataset-items?token=test-token" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotInput["queries"] != "climate policy" {
		t.Errorf("queries = %v, want override to win", gotInput["queries"])
	}
	if gotInput["resultsPerPage"] != float64(10) {
		t.Errorf("resultsPerPage = %v, want overridden 10", gotInput["resultsPerPage"])
	}
	// Untouched defaults survive the shallow merge.
	if gotInput["maxPagesPerQuery"] != float64(1) {
		t.Errorf("maxPagesPerQuery = %v, want default 1", gotInput["maxPagesPerQuery"])
	}
	if gotInput["aiMode"] != "aiModeOff" {
		t.Errorf("aiMode = %v, want default", gotInput["aiMode"])
	}
}

func TestRunActorUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "actor crashed"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestSearchClient(server.URL)
	_, err := client.RunActor(context.Background(), map[string]any{"queries": "anything"})
	if err == nil {
		t.Fatal("RunActor succeeded on a 500 response")
	}

	var scrapeErr *UpstreamScrapeError
	if !errors.As(err, &scrapeErr) {
		t.Fatalf("error type = %T, want *UpstreamScrapeError", err)
	}
	if scrapeErr.Query != "anything" {
		t.Errorf("error query = %q, want %q", scrapeErr.Query, "anything")
	}
}

func TestSearchNewsJoinsQueries(t *testing.T) {
	var gotQueries string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input map[string]any
		json.NewDecoder(r.Body).Decode(&input)
		gotQueries, _ = input["queries"].(string)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestSearchClient(server.URL)
	if _, err := client.SearchNews(context.Background(), []string{"first query", "second query"}, nil); err != nil {
		t.Fatalf("SearchNews returned error: %v", err)
	}
	if gotQueries != "first query\nsecond query" {
		t.Errorf("queries = %q, want newline-joined", gotQueries)
	}
}

func TestSearchForBiasAnalysisPreset(t *testing.T) {
	var gotInput map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotInput)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestSearchClient(server.URL)
	if _, err := client.SearchForBiasAnalysis(context.Background(), "election coverage", 50); err != nil {
		t.Fatalf("SearchForBiasAnalysis returned error: %v", err)
	}

	if gotInput["queries"] != "election coverage" {
		t.Errorf("queries = %v", gotInput["queries"])
	}
	if gotInput["resultsPerPage"] != float64(50) {
		t.Errorf("resultsPerPage = %v, want 50", gotInput["resultsPerPage"])
	}
	if gotInput["maxPagesPerQuery"] != float64(2) {
		t.Errorf("maxPagesPerQuery = %v, want 2", gotInput["maxPagesPerQuery"])
	}
	if gotInput["saveHtml"] != true || gotInput["includeUnfilteredResults"] != true {
		t.Error("bias preset did not enable saveHtml and includeUnfilteredResults")
	}
}

func TestExtractURLs(t *testing.T) {
	fromJSON := func(s string) []SearchResult {
		var results []SearchResult
		if err := json.Unmarshal([]byte(s), &results); err != nil {
			t.Fatal(err)
		}
		return results
	}

	tests := []struct {
		name         string
		results      []SearchResult
		maxPerResult int
		want         []string
	}{
		{
			name: "urls in order",
			results: fromJSON(`[
				{"organicResults": [{"url": "https://a.example/1"}, {"url": "https://a.example/2"}]},
				{"organicResults": [{"url": "https://b.example/1"}]}
			]`),
			maxPerResult: 10,
			want:         []string{"https://a.example/1", "https://a.example/2", "https://b.example/1"},
		},
		{
			name: "cap applies per result item",
			results: fromJSON(`[
				{"organicResults": [{"url": "https://a.example/1"}, {"url": "https://a.example/2"}, {"url": "https://a.example/3"}]}
			]`),
			maxPerResult: 2,
			want:         []string{"https://a.example/1", "https://a.example/2"},
		},
		{
			name:         "missing organicResults",
			results:      fromJSON(`[{"searchQuery": {"term": "x"}}]`),
			maxPerResult: 10,
			want:         nil,
		},
		{
			name: "entries without urls skipped",
			results: fromJSON(`[
				{"organicResults": [{"title": "no url"}, {"url": ""}, {"url": "https://c.example"}]}
			]`),
			maxPerResult: 10,
			want:         []string{"https://c.example"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.results, tt.maxPerResult)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractURLs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunActorInvalidJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := newTestSearchClient(server.URL)
	_, err := client.RunActor(context.Background(), nil)
	if err == nil {
		t.Fatal("RunActor accepted a non-JSON response")
	}
	var scrapeErr *UpstreamScrapeError
	if !errors.As(err, &scrapeErr) {
		t.Fatalf("error type = %T, want *UpstreamScrapeError", err)
	}
	if !strings.Contains(err.Error(), "decoding") {
		t.Errorf("error = %q, want decode failure", err)
	}
}
