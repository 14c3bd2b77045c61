// Package prompt assembles the bounded generation prompt: a
// per-capability system preamble, serialized source excerpts, truncated
// conversation history, and the current user message.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sellerpulse/backend/internal/capability"
	"github.com/sellerpulse/backend/internal/storage/models"
)

// DefaultTokenBudget caps the estimated prompt size.
const DefaultTokenBudget = 6000

const basePreamble = `You are a marketplace-selling assistant for e-commerce sellers.
Your answers must:
1. Be based ONLY on the data sources provided below
2. Cite sources using [source_id] notation
3. State clearly when the provided data does not cover the question
4. Never invent metrics, identifiers, or marketplace facts

Be concise and actionable.`

var preambles = map[capability.Capability]string{
	capability.KeywordInsights:  basePreamble + "\nFocus on search volume, cost-per-click, competition, and trend signals for the keywords in the sources.",
	capability.MarketBrief:      basePreamble + "\nSummarize the market picture: demand trends, seasonality, and notable movements visible in the sources.",
	capability.CompetitorIntel:  basePreamble + "\nCompare the seller's listings against the competing listings in the sources: price, rating, and review position.",
	capability.AlertExplanation: basePreamble + "\nExplain what triggered the alerts in the sources and what the seller should check first.",
	capability.Recommendations:  basePreamble + "\nGive prioritized, concrete recommendations grounded in the source metrics.",
	capability.ComplianceCheck:  basePreamble + "\nAssess the question against the policy documents in the sources and flag anything the documents mark as restricted.",
	capability.SupportDocs:      basePreamble + "\nAnswer from the support documentation excerpts in the sources, quoting the relevant steps.",
	capability.OpenEnded:        basePreamble,
}

type Prompt struct {
	System string
	User   string
}

// EstimateTokens is a deterministic, monotonic stand-in for tokenizer
// counts: one token per four runes, rounded up.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

type Builder struct {
	budget int
}

func NewBuilder(tokenBudget int) *Builder {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Builder{budget: tokenBudget}
}

// Build assembles the prompt and enforces the token budget. When over
// budget, history is dropped oldest first; if that is not enough,
// source excerpts are dropped lowest rank first. The current user
// message is never trimmed.
func (b *Builder) Build(capab capability.Capability, sources []models.RetrievedSource, history []models.Message, userMessage string) Prompt {
	system, ok := preambles[capab]
	if !ok {
		system = preambles[capability.OpenEnded]
	}

	hist := make([]models.Message, len(history))
	copy(hist, history)
	srcs := make([]models.RetrievedSource, len(sources))
	copy(srcs, sources)

	user := assembleUser(srcs, hist, userMessage)

	for EstimateTokens(system)+EstimateTokens(user) > b.budget && len(hist) > 0 {
		hist = hist[1:]
		user = assembleUser(srcs, hist, userMessage)
	}

	for EstimateTokens(system)+EstimateTokens(user) > b.budget && len(srcs) > 0 {
		srcs = srcs[:len(srcs)-1]
		user = assembleUser(srcs, hist, userMessage)
	}

	return Prompt{System: system, User: user}
}

func assembleUser(sources []models.RetrievedSource, history []models.Message, userMessage string) string {
	var b strings.Builder

	if len(sources) > 0 {
		b.WriteString("Data sources:\n")
		for _, s := range sources {
			b.WriteString(fmt.Sprintf("[%s] (%s, relevance %.2f) %s\n", s.ID, s.Type, s.Score, s.Label))
			if s.Context != "" {
				b.WriteString(fmt.Sprintf("    %s\n", excerpt(s.Context, 500)))
			}
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Data sources: none available.\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			b.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(userMessage)

	return b.String()
}

func excerpt(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
