// Package lexicon implements a word-list sentiment analyzer based on the
// AFINN-165 lexicon, extended with crypto-market slang.
package lexicon

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

//go:embed data/afinn-165.txt
var afinnData []byte

//go:embed data/crypto.txt
var cryptoData []byte

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "nor": {}, "neither": {}, "none": {},
	"nobody": {}, "nothing": {}, "nowhere": {}, "cannot": {},
	"don't": {}, "dont": {}, "can't": {}, "cant": {}, "won't": {}, "wont": {},
	"isn't": {}, "isnt": {}, "aren't": {}, "arent": {}, "wasn't": {}, "wasnt": {},
	"weren't": {}, "werent": {}, "doesn't": {}, "doesnt": {}, "didn't": {}, "didnt": {},
	"shouldn't": {}, "wouldn't": {}, "couldn't": {}, "hasn't": {}, "haven't": {}, "hadn't": {},
}

// Result is the detailed outcome of analyzing one text.
type Result struct {
	Score       float64
	Comparative float64
	Tokens      []string
	Positive    []string
	Negative    []string
}

// Analyzer scores text by summing per-word lexicon values.
// A negator immediately before a scored word flips that word's sign.
type Analyzer struct {
	words map[string]float64
}

// New returns an analyzer loaded with the embedded lexicons. extra entries
// override built-in values.
func New(extra map[string]float64) (*Analyzer, error) {
	words := make(map[string]float64, 4096)
	if err := parse(afinnData, words); err != nil {
		return nil, fmt.Errorf("afinn lexicon: %w", err)
	}
	if err := parse(cryptoData, words); err != nil {
		return nil, fmt.Errorf("crypto lexicon: %w", err)
	}
	for w, s := range extra {
		words[strings.ToLower(w)] = s
	}
	return &Analyzer{words: words}, nil
}

// MustNew is like New but panics on an invalid embedded lexicon.
func MustNew() *Analyzer {
	a, err := New(nil)
	if err != nil {
		panic(err)
	}
	return a
}

func parse(data []byte, into map[string]float64) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		word, value, ok := strings.Cut(text, "\t")
		if !ok {
			return fmt.Errorf("line %d: missing tab separator", line)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		into[strings.TrimSpace(word)] = score
	}
	return sc.Err()
}

// Len reports the number of words in the lexicon.
func (a *Analyzer) Len() int {
	return len(a.words)
}

// Score returns the raw signed sentiment score of text.
func (a *Analyzer) Score(text string) float64 {
	return a.Analyze(text).Score
}

func (a *Analyzer) Analyze(text string) Result {
	tokens := Tokenize(text)
	res := Result{Tokens: tokens}

	for i, tok := range tokens {
		v, ok := a.words[tok]
		if !ok {
			continue
		}
		if i > 0 {
			if _, neg := negators[tokens[i-1]]; neg {
				v = -v
			}
		}
		res.Score += v
		switch {
		case v > 0:
			res.Positive = append(res.Positive, tok)
		case v < 0:
			res.Negative = append(res.Negative, tok)
		}
	}

	if len(tokens) > 0 {
		res.Comparative = res.Score / float64(len(tokens))
	}
	return res
}

// Tokenize lowercases text and splits it into words. Apostrophes are kept so
// contractions like "don't" survive as one token.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.ReplaceAll(f, "’", "'")
		f = strings.Trim(f, "'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
