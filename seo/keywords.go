// Package seo scores product descriptions and suggests rewrites.
package seo

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Keyword is one term of a description with its frequency.
type Keyword struct {
	Term    string  `json:"term"`
	Count   int     `json:"count"`
	Density float64 `json:"density"` // share of all counted words, in percent
}

// minTermLength drops short function words the stop list misses.
const minTermLength = 3

var stopWords = toSet(
	// ru
	"и", "в", "во", "не", "что", "он", "на", "я", "с", "со", "как", "а", "то", "все", "она", "так",
	"его", "но", "да", "ты", "к", "у", "же", "вы", "за", "бы", "по", "только", "ее", "мне", "было",
	"вот", "от", "меня", "еще", "нет", "о", "из", "ему", "теперь", "когда", "даже", "ну", "ли",
	"если", "уже", "или", "ни", "быть", "был", "него", "до", "вас", "нибудь", "уж", "вам", "ведь",
	"там", "потом", "себя", "ничего", "ей", "может", "они", "тут", "где", "есть", "надо", "ней",
	"для", "мы", "тебя", "их", "чем", "была", "сам", "чтоб", "без", "будто", "чего", "раз", "тоже",
	"себе", "под", "будет", "ж", "тогда", "кто", "этот", "того", "потому", "этого", "какой",
	"совсем", "ним", "здесь", "этом", "один", "почти", "мой", "тем", "чтобы", "нее", "были",
	"куда", "зачем", "всех", "можно", "при", "об", "хоть", "после", "над", "больше", "тот",
	"через", "эти", "нас", "про", "всего", "них", "какая", "много", "разве", "эту", "моя",
	"свою", "этой", "перед", "иногда", "лучше", "чуть", "том", "нельзя", "такой", "им", "более",
	"всегда", "конечно", "всю", "между", "это", "также", "очень", "ваш", "вашей", "вашего",
	// en
	"the", "and", "for", "with", "you", "your", "are", "this", "that", "from", "was", "but",
	"not", "all", "can", "has", "have", "its", "our", "out", "will",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Tokenize splits text into lowercase words of letters and digits. Hyphens
// inside a word are kept.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	// A Caser is stateful, so each call gets its own.
	lower := cases.Lower(language.Russian)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if f == "" {
			continue
		}
		words = append(words, lower.String(f))
	}
	return words
}

// ExtractKeywords returns up to limit terms of text ordered by frequency,
// ties broken by first occurrence. Stop words, pure numbers and terms
// shorter than three letters are ignored.
func ExtractKeywords(text string, limit int) []Keyword {
	words := Tokenize(text)

	counts := make(map[string]int)
	first := make(map[string]int)
	total := 0
	for i, w := range words {
		if !countable(w) {
			continue
		}
		total++
		if _, ok := counts[w]; !ok {
			first[w] = i
		}
		counts[w]++
	}

	keywords := make([]Keyword, 0, len(counts))
	for term, count := range counts {
		keywords = append(keywords, Keyword{
			Term:    term,
			Count:   count,
			Density: decimal.NewFromInt(int64(count * 100)).Div(decimal.NewFromInt(int64(total))).Round(2).InexactFloat64(),
		})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Count != keywords[j].Count {
			return keywords[i].Count > keywords[j].Count
		}
		return first[keywords[i].Term] < first[keywords[j].Term]
	})
	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

func countable(w string) bool {
	if utf8.RuneCountInString(w) < minTermLength {
		return false
	}
	if _, stop := stopWords[w]; stop {
		return false
	}
	return strings.IndexFunc(w, unicode.IsLetter) >= 0
}
