package query

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrEmptyQuery rejects queries that are empty after trimming.
var ErrEmptyQuery = errors.New("query is required")

// Term is one conjunct of a compiled query.
type Term struct {
	Text string

	// Prefix matches any indexed word starting with Text. Single-rune
	// tokens stay exact; prefixing them is too noisy.
	Prefix bool
}

// Match is the engine-executable form of a free-text query. Either
// Terms is non-empty (AND of term clauses) or Phrase is set (exact
// phrase fallback for queries with no extractable tokens).
type Match struct {
	Phrase string
	Terms  []Term
}

// Compile turns raw user text into a Match.
func Compile(raw string) (Match, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Match{}, ErrEmptyQuery
	}

	if m, ok := compiled.get(trimmed); ok {
		return m, nil
	}

	tokens := Tokenize(trimmed)
	var m Match
	if len(tokens) == 0 {
		m = Match{Phrase: trimmed}
	} else {
		terms := make([]Term, len(tokens))
		for i, tok := range tokens {
			terms[i] = Term{
				Text:   tok,
				Prefix: utf8.RuneCountInString(tok) >= 2,
			}
		}
		m = Match{Terms: terms}
	}

	compiled.put(trimmed, m)
	return m, nil
}

// FTS5 renders the match as an SQLite FTS5 expression against the
// content column.
func (m Match) FTS5() string {
	if len(m.Terms) == 0 {
		return `content:"` + strings.ReplaceAll(m.Phrase, `"`, `""`) + `"`
	}

	parts := make([]string, len(m.Terms))
	for i, t := range m.Terms {
		if t.Prefix {
			parts[i] = "content:" + t.Text + "*"
		} else {
			parts[i] = "content:" + t.Text
		}
	}
	return strings.Join(parts, " AND ")
}

// Tokenize extracts maximal same-script runs: ASCII word characters,
// CJK ideographs, hiragana, or katakana. Runs of different scripts
// never merge, so "abc猫" is two tokens while "東京都" stays one.
func Tokenize(s string) []string {
	var out []string
	var b strings.Builder
	last := classNone

	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
		last = classNone
	}

	for _, r := range s {
		c := classOf(r)
		if c == classExtend {
			// Prolonged sound mark continues a kana run.
			if last == classHiragana || last == classKatakana {
				b.WriteRune(r)
				continue
			}
			c = classKatakana
		}
		if c == classNone {
			flush()
			continue
		}
		if c != last && last != classNone {
			flush()
		}
		b.WriteRune(r)
		last = c
	}
	flush()

	return out
}

type runeClass int

const (
	classNone runeClass = iota
	classWord
	classCJK
	classHiragana
	classKatakana
	classExtend
)

func classOf(r rune) runeClass {
	switch {
	case r == '_',
		r >= '0' && r <= '9',
		r >= 'a' && r <= 'z',
		r >= 'A' && r <= 'Z':
		return classWord
	case r >= '一' && r <= '龯', r == '々', r == '〆', r == '〤':
		return classCJK
	case r >= 'ぁ' && r <= 'ゔ':
		return classHiragana
	case r >= 'ァ' && r <= 'ヴ':
		return classKatakana
	case r == 'ー':
		return classExtend
	default:
		return classNone
	}
}
