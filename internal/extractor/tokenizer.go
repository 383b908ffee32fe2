package extractor

import "github.com/tsawler/prose/v3"

// Tokenize splits text into word tokens using prose's tokenizer, the same
// library the sentence/token boundary detection in this package's entity
// extraction is built on.
func Tokenize(text string) ([]string, error) {
	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		return nil, err
	}
	tokens := doc.Tokens()
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Text)
	}
	return out, nil
}

// defaultStopwords is a short, unexported English stopword list: the
// resource manager's stopword-set resource is a small fixed table, not
// a dependency on prose (prose does not ship one).
var defaultStopwords = []string{
	"a", "an", "the", "and", "or", "but", "of", "to", "in", "on", "at",
	"is", "was", "were", "are", "be", "been", "for", "with", "as", "by",
	"it", "this", "that", "these", "those", "he", "she", "they", "we",
}

// DefaultStopwords returns a fresh set built from a short fixed English
// stopword list.
func DefaultStopwords() map[string]bool {
	out := make(map[string]bool, len(defaultStopwords))
	for _, w := range defaultStopwords {
		out[w] = true
	}
	return out
}
