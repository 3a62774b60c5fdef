// Package corpus defines the pipeline's record types and the timestamped
// snapshot store they are persisted in.
package corpus

import "time"

// Timestamp layout used in snapshot file names, e.g. crawl_20260203_161009.
const TimestampLayout = "20060102_150405"

// Corpus names. The first group is written by the crawl pipeline, the
// second by the encode post-processor.
const (
	Raw                   = "raw"
	ManuallyCleaned       = "manually_cleaned"
	RawChunks             = "raw_chunks"
	ManuallyCleanedChunks = "manually_cleaned_chunks"
	LMCleanedTextChunks   = "lm_cleaned_text_chunks"
	LMAbstractChunks      = "lm_abstract_chunks"
	LMSummaryChunks       = "lm_summary_chunks"
	LMQAndAChunks         = "lm_q_and_a_chunks"

	LMCleanedTextSubchunks     = "lm_cleaned_text_subchunks"
	LMSummarySubchunks         = "lm_summary_subchunks"
	LMQAndAValidChunks         = "lm_q_and_a_valid_chunks"
	LMQAndAForQOnlyValidChunks = "lm_q_and_a_for_q_only_valid_chunks"
)

// PipelineCorpora are the corpora a crawl snapshot writes, in commit order.
var PipelineCorpora = []string{
	Raw,
	ManuallyCleaned,
	RawChunks,
	ManuallyCleanedChunks,
	LMCleanedTextChunks,
	LMAbstractChunks,
	LMSummaryChunks,
	LMQAndAChunks,
}

// Clock abstracts time.Now for snapshot timestamps and reuse decisions.
type Clock interface {
	Now() time.Time
}

// Page is a full-page record: one crawled URL with its text under one
// transform stage. Tokens maps tokenizer name to token count.
type Page struct {
	URL    string         `json:"url"`
	Text   string         `json:"text"`
	Tokens map[string]int `json:"tokens,omitempty"`
}

// Chunk is one token-budgeted slice of a page. Post-processed variants
// keep the source chunk's Index and number their pieces in SubIndex,
// starting at 1; crawl-time chunks leave SubIndex zero.
type Chunk struct {
	URL      string         `json:"url"`
	Index    int            `json:"index"`
	SubIndex int            `json:"subchunk_index,omitempty"`
	Text     string         `json:"text"`
	Tokens   map[string]int `json:"tokens,omitempty"`
}

// QAPair is one generated question/answer pair. Tokens holds
// max(question, answer) per tokenizer.
type QAPair struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Tokens   map[string]int `json:"tokens,omitempty"`
}

// QARecord groups the pairs generated from one source chunk.
type QARecord struct {
	URL   string   `json:"url"`
	Index int      `json:"index"`
	Pairs []QAPair `json:"pairs"`
}
