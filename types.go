package main

// SearchResult is one item from the scrape actor's dataset. The shape is
// owned by the actor; we only ever look at organicResults[].url.
type SearchResult map[string]any

// ArticleRecord is the outcome of fetching a single URL. Either Success is
// true and the content fields are populated, or Success is false and Error
// explains why. Records are never shared across requests.
type ArticleRecord struct {
	URL             string   `json:"url"`
	Title           string   `json:"title,omitempty"`
	Text            string   `json:"text,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	PublishDate     string   `json:"publish_date,omitempty"`
	TopImage        string   `json:"top_image,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	CanonicalLink   string   `json:"canonical_link,omitempty"`
	WordCount       int      `json:"word_count"`
	Language        string   `json:"language,omitempty"`
	FetchedAt       string   `json:"fetched_at"`
	Success         bool     `json:"success"`
	Error           string   `json:"error,omitempty"`
}

// BiasArticle is the reduced view of a successful ArticleRecord served by
// the article-bias-analysis endpoint. Source is the URL's host.
type BiasArticle struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Summary         string   `json:"summary"`
	Keywords        []string `json:"keywords"`
	Authors         []string `json:"authors"`
	PublishDate     string   `json:"publish_date"`
	Source          string   `json:"source"`
	WordCount       int      `json:"word_count"`
	MetaDescription string   `json:"meta_description"`
	Language        string   `json:"language"`
	FetchedAt       string   `json:"fetched_at"`
	AnalysisReady   bool     `json:"analysis_ready"`
}

// URLValidation is the result of the lightweight pre-flight check.
type URLValidation struct {
	Valid       bool   `json:"valid"`
	URL         string `json:"url"`
	Error       string `json:"error,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// ReferenceSource is a reference article as supplied to the analyzer,
// before a ref_id has been assigned.
type ReferenceSource struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Date  string `json:"date"`
	URL   string `json:"url"`
}

// ReferenceArticle is a reference as packaged into an analysis prompt.
// RefID is "R1", "R2", ... in the order the references were supplied;
// evidence citations in sentence reviews refer back to these ids.
type ReferenceArticle struct {
	RefID string `json:"ref_id"`
	Title string `json:"title"`
	Date  string `json:"date"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// ReferenceSummary is a ReferenceArticle without its text, echoed back in
// document_metadata.references_used.
type ReferenceSummary struct {
	RefID string `json:"ref_id"`
	Title string `json:"title"`
	Date  string `json:"date"`
	URL   string `json:"url"`
}

// Verdicts form a closed set; the model is instructed to pick one per
// sentence.
const (
	VerdictSupported    = "Supported"
	VerdictContradicted = "Contradicted"
	VerdictUnverifiable = "Unverifiable"
	VerdictMisleading   = "Misleading by context"
	VerdictNoClaim      = "No factual claim"
)

// Evidence is one citation from a sentence review into the reference set.
type Evidence struct {
	RefID     string `json:"ref_id"`
	Locator   string `json:"locator"`
	Quote     string `json:"quote"`
	Alignment string `json:"alignment"`
}

// SentenceReview is the model's verdict on one sentence of the target
// text. Index is 1-based and global across the whole sentence sequence,
// not relative to the chunk the sentence was analyzed in.
type SentenceReview struct {
	Index          int        `json:"index"`
	Sentence       string     `json:"sentence"`
	Types          []string   `json:"types"`
	Verdict        string     `json:"verdict"`
	Issues         []string   `json:"issues"`
	ClaimExtracted *string    `json:"claim_extracted"`
	Evidence       []Evidence `json:"evidence"`
	Explanation    string     `json:"explanation"`
	Confidence     float64    `json:"confidence"`
}

// DocumentMetadata identifies the analyzed article and the reference list
// as actually sent to the model.
type DocumentMetadata struct {
	TargetTitle    string             `json:"target_title"`
	TargetDate     string             `json:"target_date"`
	ReferencesUsed []ReferenceSummary `json:"references_used"`
}

// RecurringPattern counts repeated rhetorical issues across sentences.
type RecurringPattern struct {
	Pattern              string `json:"pattern"`
	Instances            int    `json:"instances"`
	ExampleSentenceIndex int    `json:"example_sentence_index"`
}

// NotableOmission flags context present in references but missing from
// the target article.
type NotableOmission struct {
	Description    string `json:"description"`
	ReferenceRefID string `json:"reference_ref_id"`
}

// PatternSummary aggregates verdicts and recurring issues.
// sum(CountsByVerdict) always equals the number of sentence reviews.
type PatternSummary struct {
	CountsByVerdict      map[string]int     `json:"counts_by_verdict"`
	TopRecurringPatterns []RecurringPattern `json:"top_recurring_patterns,omitempty"`
	NotableOmissions     []NotableOmission  `json:"notable_omissions,omitempty"`
	TotalSentences       int                `json:"total_sentences,omitempty"`
}

// SuggestedCorrection is a proposed fix for a problematic sentence.
type SuggestedCorrection struct {
	SentenceIndex int    `json:"sentence_index"`
	Problem       string `json:"problem"`
	ProposedFix   string `json:"proposed_fix"`
	Rationale     string `json:"rationale"`
}

// OverallAssessment is the document-level verdict.
type OverallAssessment struct {
	MisleadingRiskScore int    `json:"misleading_risk_score"`
	Summary             string `json:"summary"`
}

// AnalysisReport is the full structured analysis of a target article.
type AnalysisReport struct {
	DocumentMetadata     DocumentMetadata      `json:"document_metadata"`
	SentenceReviews      []SentenceReview      `json:"sentence_reviews"`
	PatternSummary       PatternSummary        `json:"pattern_summary"`
	SuggestedCorrections []SuggestedCorrection `json:"suggested_corrections,omitempty"`
	OverallAssessment    OverallAssessment     `json:"overall_assessment"`
}

// AnalysisResult wraps an AnalysisReport with the success/failure variant
// used across the analyzer boundary. Parse failures carry the raw model
// text and, where derivable, the syntax error position.
type AnalysisResult struct {
	Success     bool             `json:"success"`
	Analysis    *AnalysisReport  `json:"analysis,omitempty"`
	RawResponse string           `json:"raw_response,omitempty"`
	Error       string           `json:"error,omitempty"`
	Message     string           `json:"message,omitempty"`
	JSONError   *JSONErrorDetail `json:"json_error_details,omitempty"`
}

// JSONErrorDetail locates a JSON syntax error in the model output.
type JSONErrorDetail struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// Stream event types emitted over the SSE endpoint.
const (
	EventStatus            = "status"
	EventWarning           = "warning"
	EventProgress          = "progress"
	EventFetchSummary      = "fetch_summary"
	EventAnalysisStart     = "analysis_start"
	EventSentenceReview    = "sentence_review"
	EventGeneratingSummary = "generating_summary"
	EventAnalysisComplete  = "analysis_complete"
	EventError             = "error"
	EventComplete          = "complete"
)

// EventProgressInfo tracks position within the full sentence sequence.
type EventProgressInfo struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// StreamEvent is one discrete, typed event in the streaming pipeline.
// Only the fields relevant to the event type are set.
type StreamEvent struct {
	Type           string             `json:"type"`
	Message        string             `json:"message,omitempty"`
	Current        int                `json:"current,omitempty"`
	Total          int                `json:"total,omitempty"`
	TotalSentences int                `json:"total_sentences,omitempty"`
	TargetTitle    string             `json:"target_title,omitempty"`
	TargetDate     string             `json:"target_date,omitempty"`
	Data           any                `json:"data,omitempty"`
	Progress       *EventProgressInfo `json:"progress,omitempty"`
}

// AnalysisCompleteData is the payload of the terminal analysis event.
type AnalysisCompleteData struct {
	PatternSummary    PatternSummary    `json:"pattern_summary"`
	OverallAssessment OverallAssessment `json:"overall_assessment"`
	DocumentMetadata  DocumentMetadata  `json:"document_metadata"`
}
