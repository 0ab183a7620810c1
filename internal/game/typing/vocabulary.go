package typing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyVocabulary is returned when a vocabulary has no usable words.
var ErrEmptyVocabulary = errors.New("vocabulary has no words")

// Vocabulary is the fixed list of words bubbles are drawn from.
// Words are lowercase, trimmed and unique.
type Vocabulary struct {
	words []string
}

// vocabularyFile is the YAML layout of a custom word list.
type vocabularyFile struct {
	Words []string `yaml:"words"`
}

// NewVocabulary normalizes words and drops blanks and duplicates.
func NewVocabulary(words []string) (*Vocabulary, error) {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = Normalize(w)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, ErrEmptyVocabulary
	}
	return &Vocabulary{words: out}, nil
}

// DefaultVocabulary returns the built-in word list.
func DefaultVocabulary() *Vocabulary {
	v, err := NewVocabulary(defaultWords)
	if err != nil {
		panic(err)
	}
	return v
}

// LoadVocabulary reads a YAML word list of the form `words: [...]`.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}

	v, err := NewVocabulary(f.Words)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return v, nil
}

// Len returns the number of words.
func (v *Vocabulary) Len() int {
	return len(v.words)
}

// Words returns a copy of the word list.
func (v *Vocabulary) Words() []string {
	out := make([]string, len(v.words))
	copy(out, v.words)
	return out
}

// Contains reports whether word is in the list.
func (v *Vocabulary) Contains(word string) bool {
	word = Normalize(word)
	for _, w := range v.words {
		if w == word {
			return true
		}
	}
	return false
}

// Normalize lowercases and trims typed input.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
