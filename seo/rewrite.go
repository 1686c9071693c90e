package seo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

// Rewriter produces an improved description.
type Rewriter interface {
	Name() string
	Rewrite(ctx context.Context, req RewriteRequest) (string, error)
}

// RewriteRequest is the input of a rewrite.
type RewriteRequest struct {
	ProductName string
	Description string
	Keywords    []Keyword
}

// ErrEmptyCompletion is returned when the model answers without text.
var ErrEmptyCompletion = errors.New("seo: empty completion")

// LLMRewriter asks an OpenAI-compatible chat completions API for a rewrite.
type LLMRewriter struct {
	client *openai.Client
	model  string
}

// NewLLMRewriter builds a rewriter for the API rooted at baseURL, for example
// https://api.openai.com/v1. client may be nil.
func NewLLMRewriter(baseURL, model, apiKey string, timeout time.Duration, client *http.Client) *LLMRewriter {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = client
	return &LLMRewriter{client: openai.NewClientWithConfig(cfg), model: model}
}

func (r *LLMRewriter) Name() string { return "llm" }

const systemPrompt = "Ты SEO-копирайтер маркетплейса Wildberries. Перепиши описание товара: " +
	"сохрани факты, естественно используй ключевые слова, разбей текст на абзацы, " +
	"объём 1000-2000 символов. Ответь только текстом описания."

func (r *LLMRewriter) Rewrite(ctx context.Context, req RewriteRequest) (string, error) {
	terms := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		terms = append(terms, k.Term)
	}
	prompt := fmt.Sprintf("Название: %s\nКлючевые слова: %s\nОписание:\n%s",
		req.ProductName, strings.Join(terms, ", "), req.Description)

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// LocalRewriter is the offline fallback. It normalizes whitespace, splits the
// text into paragraphs of a few sentences, capitalizes sentences and appends
// the top keywords missing from the text. It never fails.
type LocalRewriter struct {
	// SentencesPerParagraph defaults to 3.
	SentencesPerParagraph int
}

func (LocalRewriter) Name() string { return "local" }

func (r LocalRewriter) Rewrite(_ context.Context, req RewriteRequest) (string, error) {
	per := r.SentencesPerParagraph
	if per <= 0 {
		per = 3
	}

	sentences := splitSentences(strings.Join(strings.Fields(req.Description), " "))
	var paragraphs []string
	for i := 0; i < len(sentences); i += per {
		end := min(i+per, len(sentences))
		paragraphs = append(paragraphs, strings.Join(sentences[i:end], " "))
	}

	present := make(map[string]bool)
	for _, w := range Tokenize(req.Description) {
		present[w] = true
	}
	var missing []string
	for _, k := range req.Keywords {
		if !present[k.Term] {
			missing = append(missing, k.Term)
		}
	}
	for _, w := range Tokenize(req.ProductName) {
		if countable(w) && !present[w] && !slices.Contains(missing, w) {
			missing = append(missing, w)
		}
	}

	if len(paragraphs) == 0 && req.ProductName != "" {
		paragraphs = append(paragraphs, capitalize(strings.TrimSpace(req.ProductName))+".")
	}
	if len(missing) > 0 {
		paragraphs = append(paragraphs, "Подходит для запросов: "+strings.Join(missing, ", ")+".")
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, capitalize(s))
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, capitalize(s)+".")
	}
	return sentences
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
