package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Thread is a conversation owned by exactly one user. Title stays empty
// until the first message names it.
type Thread struct {
	ID           string
	UserID       string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is an append-only conversation row. Once written it is never
// updated or deleted.
type Message struct {
	ID         string
	ThreadID   string
	Role       string
	Content    string
	Capability string
	Context    string

	ModelID      string
	InputTokens  int
	OutputTokens int
	LatencyMS    int
	Temperature  float32

	UsedRAG             bool
	FallbackToGeneric   bool
	InsufficientContext bool

	SourcesJSON      string
	TrainingEligible bool
	CreatedAt        time.Time
}

// SourceType enumerates the corpus record kinds evidence can come from.
const (
	SourceKeyword = "keyword"
	SourceListing = "listing"
	SourceAlert   = "alert"
	SourceDoc     = "doc"
)

// RetrievedSource is one unit of evidence. It lives only for the
// duration of a request; persisted messages keep reference ids only.
type RetrievedSource struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Context string  `json:"-"`
}

// QuotaEntry is one (user, capability, period) ledger row.
type QuotaEntry struct {
	UserID     string
	Capability string
	Period     string
	Used       int
	Limit      int
}

// TrainingSample is a captured prompt/response/source tuple, written
// once and never overwritten.
type TrainingSample struct {
	ID          string
	UserID      string
	Capability  string
	Market      string
	Prompt      string
	Response    string
	SourcesJSON string
	CollectedAt time.Time
}

// Structured corpus rows served by the relational retrieval leg.

type Keyword struct {
	ID           string
	Phrase       string
	Market       string
	SearchVolume int
	CPC          float64
	Competition  float64
	Trend        float64
	UpdatedAt    time.Time
}

type Listing struct {
	ID        string
	UserID    string
	Market    string
	ASIN      string
	Title     string
	Price     float64
	Rating    float64
	Reviews   int
	UpdatedAt time.Time
}

type Alert struct {
	ID        string
	UserID    string
	Market    string
	KeywordID string
	Kind      string
	Message   string
	Severity  string
	CreatedAt time.Time
}

type Document struct {
	ID         string
	Title      string
	Market     string
	Topic      string
	Summary    string
	RawContent string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type DocumentChunk struct {
	ID         string
	DocID      string
	ChunkIndex int
	Text       string
	CreatedAt  time.Time
}
