package seo

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Length bounds for a marketplace description, in characters.
const (
	MinDescriptionLength = 1000
	MaxDescriptionLength = 5000
)

// stuffingDensity is the keyword share, in percent, above which a term
// reads as keyword stuffing.
const stuffingDensity = 6.0

// Recommend returns plain-language suggestions for text given its
// extracted keywords and the product name.
func Recommend(text, productName string, keywords []Keyword) []string {
	var recs []string
	text = strings.TrimSpace(text)
	length := utf8.RuneCountInString(text)

	switch {
	case length == 0:
		return []string{"Добавьте описание товара: карточка без описания хуже ранжируется в поиске."}
	case length < MinDescriptionLength:
		recs = append(recs, fmt.Sprintf("Расширьте описание до %d+ символов (сейчас %d).", MinDescriptionLength, length))
	case length > MaxDescriptionLength:
		recs = append(recs, fmt.Sprintf("Сократите описание до %d символов (сейчас %d).", MaxDescriptionLength, length))
	}

	for _, k := range keywords {
		if k.Count > 2 && k.Density > stuffingDensity {
			recs = append(recs, fmt.Sprintf("Слово «%s» повторяется слишком часто (%.1f%%), замените часть повторов синонимами.", k.Term, k.Density))
		}
	}

	if name := Tokenize(productName); len(name) > 0 {
		present := make(map[string]bool)
		for _, w := range Tokenize(text) {
			present[w] = true
		}
		var missing []string
		for _, w := range name {
			if countable(w) && !present[w] {
				missing = append(missing, w)
			}
		}
		if len(missing) > 0 {
			recs = append(recs, "Используйте в описании слова из названия: "+strings.Join(missing, ", ")+".")
		}
	}

	if !strings.Contains(text, "\n") && length > 300 {
		recs = append(recs, "Разбейте текст на абзацы: сплошной текст хуже читается.")
	}
	if len(keywords) < 5 {
		recs = append(recs, "Добавьте характеристики (материал, размеры, назначение): в тексте мало значимых слов.")
	}
	return recs
}
