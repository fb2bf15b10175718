package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// DefaultPromptTemplate answers in Spanish from the retrieved fragments.
const DefaultPromptTemplate = `Usa los siguientes fragmentos de contexto para responder la pregunta. Si no sabes la respuesta, simplemente di que no lo sabes. Responde en español.

Contexto: {{.context}}

Pregunta: {{.question}}

Respuesta útil:`

// ContextSeparator joins retrieved chunks in the prompt.
const ContextSeparator = "\n\n"

// Chain answers a question from the top k chunks of a vector store.
type Chain struct {
	retriever       vectorstores.Retriever
	generator       Generator
	prompt          prompts.PromptTemplate
	temperature     float64
	maxOutputTokens int
}

type ChainOption func(*Chain)

// WithPromptTemplate overrides the Go template used to build the prompt. The
// template receives .context and .question.
func WithPromptTemplate(tmpl string) ChainOption {
	return func(c *Chain) {
		c.prompt = prompts.NewPromptTemplate(tmpl, []string{"context", "question"})
	}
}

func WithMaxOutputTokens(n int) ChainOption {
	return func(c *Chain) {
		c.maxOutputTokens = n
	}
}

func NewChain(store vectorstores.VectorStore, generator Generator, topK int, temperature float64, opts ...ChainOption) *Chain {
	c := &Chain{
		retriever:   vectorstores.ToRetriever(store, topK),
		generator:   generator,
		prompt:      prompts.NewPromptTemplate(DefaultPromptTemplate, []string{"context", "question"}),
		temperature: temperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke retrieves once and returns both the answer and the contexts it was
// generated from.
func (c *Chain) Invoke(ctx context.Context, question string) (Answer, error) {
	docs, err := c.retriever.GetRelevantDocuments(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to retrieve documents: %w", err)
	}

	contexts := pageContents(docs)
	prompt, err := c.prompt.Format(map[string]any{
		"context":  strings.Join(contexts, ContextSeparator),
		"question": question,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("failed to format prompt: %w", err)
	}

	text, err := c.generator.Generate(ctx, prompt, GenerateOptions{
		Temperature:     c.temperature,
		MaxOutputTokens: c.maxOutputTokens,
	})
	if err != nil {
		return Answer{Contexts: contexts}, fmt.Errorf("failed to generate answer: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{Contexts: contexts}, ErrEmptyResponse
	}

	return Answer{Text: text, Contexts: contexts}, nil
}

func pageContents(docs []schema.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.PageContent
	}
	return out
}
