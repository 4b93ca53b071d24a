package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Cap on downloaded page size. Anything larger is truncated before parsing.
const maxArticleBytes = 10 << 20

const validateTimeout = 5 * time.Second

// ArticleFetcher downloads pages and extracts article content and
// metadata. Per-URL failures are captured in the returned ArticleRecord;
// the fetcher never propagates them as errors.
type ArticleFetcher struct {
	client    *http.Client
	converter *md.Converter
	userAgent string
	language  string
}

// NewArticleFetcher creates a fetcher with the configured user agent,
// timeout, and default language.
func NewArticleFetcher(cfg FetcherSettings) *ArticleFetcher {
	return &ArticleFetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		converter: md.NewConverter("", true, nil),
		userAgent: cfg.UserAgent,
		language:  cfg.Language,
	}
}

// parseArticleURL accepts a URL only if it has both a scheme and a host.
func parseArticleURL(raw string) (*url.URL, bool) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, false
	}
	return parsed, true
}

// hostOf extracts the network-location component of a URL.
func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

// FetchOne downloads and parses a single article. The returned record has
// Success=false with an error string on any failure; secondary NLP
// enrichment (keywords, summary) is best-effort and never fails the fetch.
func (f *ArticleFetcher) FetchOne(ctx context.Context, rawURL string) *ArticleRecord {
	fetchedAt := time.Now().Format(time.RFC3339)
	fail := func(ferr *FetchError) *ArticleRecord {
		log.Printf("✗ Fetching article %s: %v", rawURL, ferr)
		return &ArticleRecord{URL: rawURL, Error: ferr.Error(), FetchedAt: fetchedAt}
	}

	parsed, ok := parseArticleURL(rawURL)
	if !ok {
		return fail(&FetchError{URL: rawURL, Stage: "validate", Err: fmt.Errorf("invalid URL")})
	}

	log.Printf("→ Fetching article from %s", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail(&FetchError{URL: rawURL, Stage: "download", Err: err})
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fail(&FetchError{URL: rawURL, Stage: "download", Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(&FetchError{URL: rawURL, Stage: "download", Status: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return fail(&FetchError{URL: rawURL, Stage: "download", Err: err})
	}

	record := &ArticleRecord{URL: rawURL, FetchedAt: fetchedAt, Success: true}

	article, rerr := readability.FromReader(bytes.NewReader(body), parsed)
	if rerr == nil {
		record.Title = strings.TrimSpace(article.Title)
		record.Text = strings.TrimSpace(article.TextContent)
		record.TopImage = article.Image
		record.Language = article.Language
		if article.Byline != "" {
			record.Authors = splitByline(article.Byline)
		}
		if article.PublishedTime != nil {
			record.PublishDate = article.PublishedTime.Format(time.RFC3339)
		}
	}
	if record.Text == "" {
		// Readability found no usable body; fall back to a plain
		// markdown conversion of the whole page.
		markdown, merr := f.converter.ConvertString(string(body))
		if merr != nil {
			stage := "parse"
			if rerr != nil {
				return fail(&FetchError{URL: rawURL, Stage: stage, Err: rerr})
			}
			return fail(&FetchError{URL: rawURL, Stage: stage, Err: merr})
		}
		record.Text = strings.TrimSpace(markdown)
	}

	f.applyPageMeta(record, body)
	record.WordCount = countWords(record.Text)
	if record.Language == "" {
		record.Language = f.language
	}

	// Best-effort enrichment: an empty or odd body yields empty fields,
	// never a failed fetch.
	keywords, summary := enrichArticle(record.Text)
	record.Keywords = keywords
	record.Summary = summary

	log.Printf("✓ Fetched article: %s", truncateForLog(record.Title, 50))
	return record
}

// FetchMany fetches URLs sequentially, preserving order. Individual
// failures are included in the output as failed records.
func (f *ArticleFetcher) FetchMany(ctx context.Context, urls []string) []*ArticleRecord {
	records := make([]*ArticleRecord, 0, len(urls))
	for _, u := range urls {
		records = append(records, f.FetchOne(ctx, u))
	}
	log.Printf("Fetched %d articles", len(records))
	return records
}

// ValidateURL issues a lightweight existence check: well-formed URL,
// 2xx status, and an HTML content type.
func (f *ArticleFetcher) ValidateURL(ctx context.Context, rawURL string) *URLValidation {
	if _, ok := parseArticleURL(rawURL); !ok {
		return &URLValidation{URL: rawURL, Error: "Invalid URL format"}
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return &URLValidation{URL: rawURL, Error: err.Error()}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return &URLValidation{URL: rawURL, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &URLValidation{URL: rawURL, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") {
		return &URLValidation{URL: rawURL, Error: fmt.Sprintf("Invalid content type: %s", contentType)}
	}

	return &URLValidation{
		Valid:       true,
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
	}
}

// FetchForBiasAnalysis re-shapes a successful fetch into the reduced view
// used for analysis. A failed fetch is propagated unchanged as the second
// return value.
func (f *ArticleFetcher) FetchForBiasAnalysis(ctx context.Context, rawURL string) (*BiasArticle, *ArticleRecord) {
	record := f.FetchOne(ctx, rawURL)
	if !record.Success {
		return nil, record
	}

	return &BiasArticle{
		URL:             record.URL,
		Title:           record.Title,
		Content:         record.Text,
		Summary:         record.Summary,
		Keywords:        record.Keywords,
		Authors:         record.Authors,
		PublishDate:     record.PublishDate,
		Source:          hostOf(record.URL),
		WordCount:       record.WordCount,
		MetaDescription: record.MetaDescription,
		Language:        record.Language,
		FetchedAt:       record.FetchedAt,
		AnalysisReady:   true,
	}, nil
}

// applyPageMeta fills metadata fields readability does not cover, and
// overrides its guesses where the page declares something explicit.
func (f *ArticleFetcher) applyPageMeta(record *ArticleRecord, body []byte) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}

	if record.Title == "" {
		record.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if desc, ok := metaContent(doc, "description", "og:description"); ok {
		record.MetaDescription = desc
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		record.CanonicalLink = strings.TrimSpace(href)
	}
	if record.TopImage == "" {
		if img, ok := metaContent(doc, "og:image"); ok {
			record.TopImage = img
		}
	}
	if len(record.Authors) == 0 {
		if author, ok := metaContent(doc, "author", "article:author"); ok {
			record.Authors = splitByline(author)
		}
	}
	if record.PublishDate == "" {
		if published, ok := metaContent(doc, "article:published_time", "date"); ok {
			record.PublishDate = published
		}
	}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok && lang != "" {
		record.Language = normalizeLang(lang)
	}
}

// metaContent returns the first non-empty content attribute among meta
// tags matching any of the given name/property values.
func metaContent(doc *goquery.Document, names ...string) (string, bool) {
	for _, name := range names {
		sel := fmt.Sprintf(`meta[name="%s"], meta[property="%s"]`, name, name)
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// splitByline breaks an author byline on common separators.
func splitByline(byline string) []string {
	byline = strings.TrimPrefix(strings.TrimSpace(byline), "By ")
	var authors []string
	for _, part := range strings.FieldsFunc(byline, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	}) {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "and "))
		if part != "" {
			authors = append(authors, part)
		}
	}
	return authors
}

// normalizeLang reduces values like "en-US" to a bare language code.
func normalizeLang(lang string) string {
	lang = strings.TrimSpace(lang)
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	return strings.ToLower(lang)
}

// countWords counts whitespace-separated tokens; 0 for empty text.
func countWords(text string) int {
	return len(strings.Fields(text))
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
