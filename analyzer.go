package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"unicode"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

const analysisSystemPrompt = "You are an impartial claims-and-rhetoric analyst."

const summaryFallback = "Analysis complete."

// completionFunc is the seam between the analyzer and the completion API.
type completionFunc func(systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)

// ClaimsAnalyzer reviews a target article sentence-by-sentence against a
// set of reference articles, either in one blocking call or as a stream
// of per-chunk results.
type ClaimsAnalyzer struct {
	apiKey   string
	settings AnalyzerSettings
	complete completionFunc
}

// NewClaimsAnalyzer creates an analyzer backed by the completion API.
func NewClaimsAnalyzer(apiKey string, cfg AnalyzerSettings) *ClaimsAnalyzer {
	a := &ClaimsAnalyzer{apiKey: apiKey, settings: cfg}
	a.complete = a.llmComplete
	return a
}

func (a *ClaimsAnalyzer) llmComplete(systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	settings := types.RequestSettings{
		Model:       a.settings.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, "", a.apiKey, settings)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	return response.Content[0].Text, nil
}

// PackageReferences assigns sequential ref ids ("R1", "R2", ...) in input
// order. Citations in sentence reviews resolve against these ids, so the
// ordering must match the order references were supplied.
func PackageReferences(refs []ReferenceSource) []ReferenceArticle {
	packaged := make([]ReferenceArticle, 0, len(refs))
	for i, ref := range refs {
		title := ref.Title
		if title == "" {
			title = "Untitled"
		}
		date := ref.Date
		if date == "" {
			date = "Unknown"
		}
		refURL := ref.URL
		if refURL == "" {
			refURL = "Unknown"
		}
		packaged = append(packaged, ReferenceArticle{
			RefID: fmt.Sprintf("R%d", i+1),
			Title: title,
			Date:  date,
			URL:   refURL,
			Text:  ref.Text,
		})
	}
	return packaged
}

func summarizeReferences(packaged []ReferenceArticle) []ReferenceSummary {
	summaries := make([]ReferenceSummary, 0, len(packaged))
	for _, ref := range packaged {
		summaries = append(summaries, ReferenceSummary{
			RefID: ref.RefID,
			Title: ref.Title,
			Date:  ref.Date,
			URL:   ref.URL,
		})
	}
	return summaries
}

const analysisPromptTemplate = `You will review a TARGET article sentence-by-sentence against trusted REFERENCE articles (treated as ground truth for this task).

########################
# INPUT
########################
TARGET_TITLE: %s
TARGET_DATE: %s
TARGET_TEXT:
%s

REFERENCES_JSON:
%s

########################
# OBJECTIVES
########################
1) For each sentence in TARGET_TEXT:
   - Detect if it contains a factual claim.
   - Assign a verdict:
     Supported | Contradicted | Unverifiable | Misleading by context | No factual claim
   - Tag sentence type (multi-select):
     Factual claim | Opinion/Value | Reported speech/Quote | Rhetorical/Framing
   - Identify issues (multi-select, as applicable):
     Cherry-picking, Missing context, Loaded language, False equivalence, Strawman,
     Out-of-date statistic, Ambiguous attribution, Anecdotal evidence, Hasty generalization,
     Appeal to authority, Whataboutism, Motte-and-Bailey, Gish gallop
   - Extract a succinct checkable claim (or null).
   - Provide evidence citations from REFERENCES_JSON with brief quotes (<=20 words) and a locator.
   - Give a concise explanation <=40 words.
   - Add a confidence score 0.00-1.00.

2) Provide an overall pattern summary, suggested corrections, and an overall assessment.

########################
# GROUND RULES
########################
- Evidence scope: Use ONLY REFERENCES_JSON. If coverage is insufficient, mark Unverifiable; do NOT speculate.
- Attribution: Distinguish author narration vs. quoted/attributed speech. Flag selective or misleading quoting.
- Numbers & stats: Check rates, denominators, units, date ranges, and comparability. Prefer the most recent relevant reference when conflicts exist.
- Time/context: If key bounds/denominators/context are omitted vs. references, use "Misleading by context" and specify what's missing.
- Conciseness: Per-sentence explanations <=40 words; quotes from references <=20 words.
- No chain-of-thought: Do all reasoning internally and output ONLY the JSON specified below.
- Formatting: Return valid JSON (no trailing commas). Do not include any extra prose before or after the JSON.

########################
# OUTPUT (return EXACTLY this JSON shape)
########################
{
  "document_metadata": {
    "target_title": "%s",
    "target_date": "%s",
    "references_used": [
      {"ref_id": "R1", "title": "...", "date": "YYYY-MM-DD or null", "url": "https://... or null"}
    ]
  },
  "sentence_reviews": [
    {
      "index": 1,
      "sentence": "<original sentence>",
      "types": ["Factual claim" | "Opinion/Value" | "Reported speech/Quote" | "Rhetorical/Framing"],
      "verdict": "Supported" | "Contradicted" | "Unverifiable" | "Misleading by context" | "No factual claim",
      "issues": ["Cherry-picking", "Missing context", "Loaded language", "False equivalence", "Strawman", "Out-of-date statistic", "Ambiguous attribution", "Anecdotal evidence", "Hasty generalization", "Appeal to authority", "Whataboutism", "Motte-and-Bailey", "Gish gallop"],
      "claim_extracted": "<succinct restatement or null>",
      "evidence": [
        {
          "ref_id": "R1",
          "locator": "paragraph 5",
          "quote": "<=20 words from reference>",
          "alignment": "supports" | "contradicts" | "context"
        }
      ],
      "explanation": "<=40 words, evidence-based>",
      "confidence": 0.0
    }
  ],
  "pattern_summary": {
    "counts_by_verdict": {
      "Supported": 0,
      "Contradicted": 0,
      "Unverifiable": 0,
      "Misleading by context": 0,
      "No factual claim": 0
    },
    "top_recurring_patterns": [
      {"pattern": "Missing context", "instances": 0, "example_sentence_index": 0}
    ],
    "notable_omissions": [
      {"description": "<relevant missing context>", "reference_ref_id": "R?"}
    ]
  },
  "suggested_corrections": [
    {
      "sentence_index": 0,
      "problem": "<short description>",
      "proposed_fix": "<revised sentence or added context>",
      "rationale": "<=30 words>"
    }
  ],
  "overall_assessment": {
    "misleading_risk_score": 0,
    "summary": "3-4 sentence overview of accuracy and patterns in plain language."
  }
}`

// Analyze runs the blocking analysis: one large prompt covering the full
// target text and reference set, parsed into a complete report. Failures
// are reported in the result, never raised.
func (a *ClaimsAnalyzer) Analyze(targetTitle, targetText string, refs []ReferenceSource, targetDate string) *AnalysisResult {
	packaged := PackageReferences(refs)
	refsJSON, err := json.MarshalIndent(packaged, "", "  ")
	if err != nil {
		return &AnalysisResult{Success: false, Error: fmt.Sprintf("marshaling references: %v", err)}
	}

	prompt := fmt.Sprintf(analysisPromptTemplate,
		targetTitle, targetDate, targetText, string(refsJSON), targetTitle, targetDate)

	raw, err := a.complete(analysisSystemPrompt, prompt, a.settings.AnalysisMaxTokens, a.settings.Temperature)
	if err != nil {
		log.Printf("✗ Claims analysis failed: %v", err)
		return &AnalysisResult{Success: false, Error: err.Error()}
	}

	text := stripCodeFence(raw)
	var report AnalysisReport
	if detail := parseAnalysisJSON(text, &report); detail != nil {
		log.Printf("✗ Claims analysis JSON parse failed at line %d, column %d: %s", detail.Line, detail.Column, detail.Message)
		return &AnalysisResult{
			Success:     false,
			Error:       fmt.Sprintf("failed to parse JSON response: %s", detail.Message),
			RawResponse: raw,
			JSONError:   detail,
		}
	}

	return &AnalysisResult{Success: true, Analysis: &report, RawResponse: raw}
}

const chunkPromptTemplate = `You are analyzing sentences from a news article for factual accuracy and bias.

TARGET ARTICLE: %s
DATE: %s

SENTENCES TO ANALYZE (indices %d to %d):
%s

REFERENCES (use ONLY these for verification):
%s

For each sentence, provide:
- index: sentence number
- sentence: the original text
- types: array of ["Factual claim" | "Opinion/Value" | "Reported speech/Quote" | "Rhetorical/Framing"]
- verdict: "Supported" | "Contradicted" | "Unverifiable" | "Misleading by context" | "No factual claim"
- issues: array of potential issues like ["Cherry-picking", "Missing context", "Loaded language", etc.]
- claim_extracted: succinct restatement or null
- evidence: array of {ref_id, locator, quote (<=20 words), alignment}
- explanation: <=40 words
- confidence: 0.0-1.0

Return ONLY a valid JSON array of sentence reviews:
[
  {
    "index": %d,
    "sentence": "...",
    "types": [...],
    "verdict": "...",
    "issues": [...],
    "claim_extracted": "..." or null,
    "evidence": [...],
    "explanation": "...",
    "confidence": 0.0
  }
]`

const summaryPromptTemplate = `Based on this sentence-by-sentence analysis, provide a 3-4 sentence summary of the article's accuracy and any patterns of bias or misleading information.

Article: %s
Analyzed: %d sentences
Verdict counts: %s

Provide a concise, plain-language summary.`

// AnalyzeStreaming runs the chunked analysis as a finite, single-consumer
// event stream. The channel is closed when the analysis finishes or the
// context is cancelled; remaining chunks are abandoned on cancellation.
func (a *ClaimsAnalyzer) AnalyzeStreaming(ctx context.Context, targetTitle, targetText string, refs []ReferenceSource, targetDate string) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		emit := func(ev StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		a.streamAnalysis(ctx, targetTitle, targetText, refs, targetDate, emit)
	}()
	return ch
}

func (a *ClaimsAnalyzer) streamAnalysis(ctx context.Context, targetTitle, targetText string, refs []ReferenceSource, targetDate string, emit func(StreamEvent) bool) {
	sentences := splitSentences(targetText)
	total := len(sentences)

	if !emit(StreamEvent{
		Type:           EventAnalysisStart,
		TotalSentences: total,
		TargetTitle:    targetTitle,
		TargetDate:     targetDate,
	}) {
		return
	}

	packaged := PackageReferences(refs)
	refsJSON, err := json.MarshalIndent(packaged, "", "  ")
	if err != nil {
		emit(StreamEvent{Type: EventError, Message: fmt.Sprintf("marshaling references: %v", err)})
		return
	}

	chunks := chunkSentences(sentences, a.settings.ChunkMaxChars)
	log.Printf("Split %d sentences into %d chunks", total, len(chunks))

	var allReviews []SentenceReview
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return
		}

		startIdx := chunk.start + 1
		endIdx := chunk.start + len(chunk.sentences)

		var numbered strings.Builder
		for j, sentence := range chunk.sentences {
			fmt.Fprintf(&numbered, "%d. %s\n", chunk.start+j+1, sentence)
		}

		prompt := fmt.Sprintf(chunkPromptTemplate,
			targetTitle, targetDate, startIdx, endIdx,
			strings.TrimRight(numbered.String(), "\n"), string(refsJSON), startIdx)

		raw, err := a.complete(analysisSystemPrompt, prompt, a.settings.ChunkMaxTokens, a.settings.Temperature)
		if err != nil {
			log.Printf("✗ Chunk %d/%d (sentences %d-%d) failed: %v", i+1, len(chunks), startIdx, endIdx, err)
			continue
		}

		text := stripCodeFence(raw)
		var reviews []SentenceReview
		if detail := parseAnalysisJSON(text, &reviews); detail != nil {
			log.Printf("✗ Chunk %d/%d (sentences %d-%d) parse failed: %s", i+1, len(chunks), startIdx, endIdx, detail.Message)
			continue
		}

		allReviews = append(allReviews, reviews...)
		for _, review := range reviews {
			if !emit(StreamEvent{
				Type:     EventSentenceReview,
				Data:     review,
				Progress: &EventProgressInfo{Current: review.Index, Total: total},
			}) {
				return
			}
		}
	}

	// No reviews at all means chunk-level errors already told the story;
	// there is nothing to summarize.
	if len(allReviews) == 0 {
		return
	}

	if !emit(StreamEvent{Type: EventGeneratingSummary, Message: "Generating overall assessment..."}) {
		return
	}

	counts := make(map[string]int)
	for _, review := range allReviews {
		verdict := review.Verdict
		if verdict == "" {
			verdict = "Unknown"
		}
		counts[verdict]++
	}

	riskScore := misleadingRiskScore(counts, len(allReviews))

	countsJSON, _ := json.Marshal(counts)
	summaryPrompt := fmt.Sprintf(summaryPromptTemplate, targetTitle, len(allReviews), string(countsJSON))
	summary, err := a.complete(analysisSystemPrompt, summaryPrompt, a.settings.SummaryMaxTokens, 0.3)
	if err != nil {
		log.Printf("✗ Summary generation failed: %v", err)
		summary = summaryFallback
	}

	emit(StreamEvent{
		Type: EventAnalysisComplete,
		Data: AnalysisCompleteData{
			PatternSummary: PatternSummary{
				CountsByVerdict: counts,
				TotalSentences:  len(allReviews),
			},
			OverallAssessment: OverallAssessment{
				MisleadingRiskScore: riskScore,
				Summary:             strings.TrimSpace(summary),
			},
			DocumentMetadata: DocumentMetadata{
				TargetTitle:    targetTitle,
				TargetDate:     targetDate,
				ReferencesUsed: summarizeReferences(packaged),
			},
		},
	})
}

// misleadingRiskScore weighs contradicted sentences double and misleading
// ones 1.5x, scaled to [0, 100].
func misleadingRiskScore(counts map[string]int, totalReviews int) int {
	if totalReviews == 0 {
		return 0
	}
	contradicted := counts[VerdictContradicted]
	misleading := counts[VerdictMisleading]
	score := int(math.Round((float64(contradicted)*2 + float64(misleading)*1.5) / float64(totalReviews) * 100))
	if score > 100 {
		score = 100
	}
	return score
}

// splitSentences breaks text at '.', '!', or '?' followed by whitespace,
// trimming fragments and discarding empty ones.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		b.WriteRune(runes[i])
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// sentenceChunk is a run of whole sentences grouped for one completion
// call. start is the 0-based index of the first sentence in the full
// sequence.
type sentenceChunk struct {
	start     int
	sentences []string
}

// chunkSentences groups sentences under a character budget without ever
// splitting a sentence. A chunk closes when the next sentence would push
// it past the budget; a single oversized sentence occupies its own chunk.
func chunkSentences(sentences []string, maxChars int) []sentenceChunk {
	var chunks []sentenceChunk
	var current sentenceChunk
	currentLen := 0

	for i, sentence := range sentences {
		if currentLen+len(sentence) > maxChars && len(current.sentences) > 0 {
			chunks = append(chunks, current)
			current = sentenceChunk{start: i, sentences: []string{sentence}}
			currentLen = len(sentence)
			continue
		}
		if len(current.sentences) == 0 {
			current.start = i
		}
		current.sentences = append(current.sentences, sentence)
		currentLen += len(sentence) + 1
	}
	if len(current.sentences) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// stripCodeFence removes a markdown code-fence wrapper and an optional
// "json" language tag from a model response.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	parts := strings.Split(s, "```")
	if len(parts) < 2 {
		return s
	}
	inner := strings.TrimPrefix(parts[1], "json")
	return strings.TrimSpace(inner)
}

// parseAnalysisJSON unmarshals model output, reporting line/column for
// syntax errors where the offset is derivable.
func parseAnalysisJSON(raw string, v any) *JSONErrorDetail {
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	detail := &JSONErrorDetail{Message: err.Error()}
	if syntaxErr, ok := err.(*json.SyntaxError); ok {
		detail.Line, detail.Column = offsetToPosition(raw, syntaxErr.Offset)
	}
	return detail
}

// offsetToPosition converts a byte offset into 1-based line and column.
func offsetToPosition(raw string, offset int64) (line, col int) {
	line, col = 1, 1
	for i := int64(0); i < offset && i < int64(len(raw)); i++ {
		if raw[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
