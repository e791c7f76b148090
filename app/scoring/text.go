// Package scoring grades resume text. Heuristic runs locally; Gemini asks a
// hosted model for the same three results.
package scoring

import (
	"bytes"
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"

	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ErrNotText = errors.New("document has no readable text")

// DecodeText turns an uploaded plain-text file into a string. UTF-16 files are
// recognized by their BOM; anything else is read as UTF-8.
func DecodeText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if bytes.HasPrefix(data, []byte("%PDF")) || bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return "", ErrNotText
	}
	dec := xunicode.BOMOverride(xunicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return "", err
	}
	s := string(out)
	if strings.ContainsRune(s, 0) || strings.Count(s, "\uFFFD")*20 > len([]rune(s)) {
		return "", ErrNotText
	}
	return s, nil
}

// normalize strips accents and lowercases so "Résumé" and "resume" match.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return strings.ToLower(result)
}

var tokenRegex = regexp.MustCompile(`[a-z0-9][a-z0-9+#./-]*[a-z0-9+#]|[a-z0-9]`)

func tokens(s string) []string {
	return tokenRegex.FindAllString(normalize(s), -1)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokens(s) {
		set[tok] = struct{}{}
	}
	return set
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be been but by can for from has have in into is it its
		of on or our that the their they this to was we were will with you your who what when where which
		while about across all also any able etc must should would may per plus including strong excellent
		good great work working team teams role position candidate candidates looking join help within
		experience years year required requirements preferred skills ability knowledge responsibilities
		using use new well other such both each more most than them then there these those very just`) {
		stopwords[w] = struct{}{}
	}
}

// jobKeywords picks the most frequent meaningful terms of a job description,
// most frequent first.
func jobKeywords(jd string, limit int) []string {
	counts := make(map[string]int)
	for _, tok := range tokens(jd) {
		if len(tok) < 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if isNumber(tok) {
			continue
		}
		counts[tok]++
	}
	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}
