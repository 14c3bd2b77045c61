package assistant

import "time"

// Request is the validated inbound message, produced from the JSON body
// after boundary validation. No untyped payload crosses into the
// orchestrator.
type Request struct {
	Message    string         `json:"message"`
	ThreadID   string         `json:"threadId,omitempty"`
	Capability string         `json:"capability,omitempty"`
	Context    RequestContext `json:"context,omitempty"`
	Options    RequestOptions `json:"options,omitempty"`
}

type RequestContext struct {
	Marketplaces []string   `json:"marketplaces,omitempty"`
	TimeRange    *TimeRange `json:"timeRange,omitempty"`
	KeywordIDs   []string   `json:"keywordIds,omitempty"`
}

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type RequestOptions struct {
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

type Response struct {
	ThreadID   string     `json:"threadId"`
	MessageID  string     `json:"messageId"`
	Answer     string     `json:"answer"`
	Capability string     `json:"capability"`
	Sources    []SourceRef `json:"sources"`
	References References `json:"references"`
	Model      ModelInfo  `json:"model"`
	Flags      Flags      `json:"flags"`
}

type SourceRef struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// References groups retrieved source ids by kind so clients can link
// straight to the underlying records.
type References struct {
	Keywords []string `json:"keywords"`
	Listings []string `json:"listings"`
	Alerts   []string `json:"alerts"`
	Docs     []string `json:"docs"`
}

type ModelInfo struct {
	ID        string `json:"id"`
	Usage     Usage  `json:"usage"`
	LatencyMS int    `json:"latencyMs"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type Flags struct {
	UsedRAG             bool `json:"usedRag"`
	FallbackToGeneric   bool `json:"fallbackToGeneric"`
	InsufficientContext bool `json:"insufficientContext"`
}
