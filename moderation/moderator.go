// Package moderation masks censored words in message content before it is
// persisted, so history, replay and broadcast all agree on the stored text.
package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"
	"unicode"

	relayerrors "chat-relay/errors"

	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed words/*.txt
var wordFiles embed.FS

// Moderator holds an Aho-Corasick automaton over the normalized censored
// word list. Matching ignores case, punctuation and whitespace so split or
// decorated spellings are still caught.
type Moderator struct {
	matcher  *goahocorasick.Machine
	maskRune rune
}

func NewModerator(words []string, maskRune rune) (*Moderator, error) {
	if len(words) == 0 {
		return nil, relayerrors.ErrEmptyWords
	}
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = normalize([]rune(word))
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, maskRune: maskRune}, nil
}

// NewEmbeddedModerator builds a moderator from the word lists shipped in the
// binary, one .txt file per language.
func NewEmbeddedModerator(maskRune rune) (*Moderator, error) {
	words, err := loadEmbeddedWords()
	if err != nil {
		return nil, err
	}
	return NewModerator(words, maskRune)
}

// Censor replaces every matched span with the mask rune, preserving the
// original length and spacing.
func (m *Moderator) Censor(original string) string {
	origRunes := []rune(original)
	normalized := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))
	for i, r := range origRunes {
		if isNoise(r) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(r))
		origIdx = append(origIdx, i)
	}
	if len(normalized) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return original
	}

	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			origRunes[i] = m.maskRune
		}
	}
	return string(origRunes)
}

func loadEmbeddedWords() ([]string, error) {
	entries, err := fs.ReadDir(wordFiles, "words")
	if err != nil {
		return nil, err
	}
	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := wordFiles.ReadFile("words/" + entry.Name())
		if err != nil {
			return nil, err
		}
		// Scanner copes with \r\n endings, unlike a bare strings.Split.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			unique[strings.ToLower(word)] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	words := make([]string, 0, len(unique))
	for word := range unique {
		words = append(words, word)
	}
	return words, nil
}

func normalize(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if isNoise(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
