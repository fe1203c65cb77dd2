// Package onnx embeds text locally with a sentence-transformers model
// exported to ONNX (all-MiniLM-L6-v2 by default). The embedder itself needs
// the onnx build tag and the onnxruntime shared library; the tokenizer does
// not.
package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token IDs of the BERT uncased vocabularies.
const (
	unkID = 100
	clsID = 101
	sepID = 102
)

// Tokenizer is a WordPiece tokenizer driven by a HuggingFace tokenizer.json.
type Tokenizer struct {
	vocab map[string]int64
}

// LoadTokenizer reads the vocabulary from a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var raw struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}
	return &Tokenizer{vocab: raw.Model.Vocab}, nil
}

// Encode returns [CLS] tokens... [SEP] truncated to maxLen ids.
func (t *Tokenizer) Encode(text string, maxLen int) []int64 {
	ids := []int64{clsID}
	for _, word := range splitWords(text) {
		for _, id := range t.wordPiece(word) {
			if len(ids) >= maxLen-1 {
				return append(ids, sepID)
			}
			ids = append(ids, id)
		}
	}
	return append(ids, sepID)
}

// splitWords lower-cases text and splits it on whitespace, isolating
// punctuation as single-rune words the way BERT's basic tokenizer does.
func splitWords(text string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// wordPiece greedily matches the longest vocabulary prefix, continuing with
// "##" pieces. A word with an unmatched remainder becomes [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}
	runes := []rune(word)
	var ids []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var match int64 = -1
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				match = id
				break
			}
		}
		if match < 0 {
			return []int64{unkID}
		}
		ids = append(ids, match)
		start = end
	}
	return ids
}
