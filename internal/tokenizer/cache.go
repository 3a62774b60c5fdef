package tokenizer

import "sync"

// Calibrated chars-per-token ratios per model family. Anything not listed
// falls back to defaultCharsPerToken, which is close for English subword
// vocabularies.
const defaultCharsPerToken = 4

var charsPerModel = map[string]int{
	"Qwen/Qwen3-8B":              3,
	"BAAI/bge-small-en-v1.5":     4,
	"colbert-ir/colbertv2.0":     4,
	"prithivida/Splade_PP_en_v1": 4,
	"Qdrant/bm25":                4,
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Heuristic{}
)

// Load returns the process-wide estimator for a model path, constructing
// it on first use. All call sites asking for the same model share one
// instance; there is deliberately no per-callsite construction path.
func Load(modelPath string) *Heuristic {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if tok, ok := cache[modelPath]; ok {
		return tok
	}
	chars, ok := charsPerModel[modelPath]
	if !ok {
		chars = defaultCharsPerToken
	}
	tok := NewHeuristic(modelPath, chars)
	cache[modelPath] = tok
	return tok
}
