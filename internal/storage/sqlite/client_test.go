package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sellerpulse/backend/internal/storage/models"
	"github.com/sellerpulse/backend/pkg/apperr"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return client
}

func insertTestMessage(t *testing.T, c *Client, threadID, role, content string, at time.Time) {
	t.Helper()
	err := c.InsertMessage(context.Background(), &models.Message{
		ID:        fmt.Sprintf("msg-%s-%d", role, at.UnixNano()),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
}

func TestEnsureThreadCreatesLazily(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	thread, err := client.EnsureThread(ctx, "u1", "", "t-new")
	if err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	if thread.ID != "t-new" || thread.UserID != "u1" {
		t.Errorf("thread = %+v", thread)
	}
	if thread.MessageCount != 0 {
		t.Errorf("new thread message_count = %d, want 0", thread.MessageCount)
	}

	loaded, err := client.EnsureThread(ctx, "u1", "t-new", "")
	if err != nil {
		t.Fatalf("EnsureThread reload: %v", err)
	}
	if loaded.ID != "t-new" {
		t.Errorf("reloaded thread id = %q", loaded.ID)
	}
}

func TestEnsureThreadRejectsForeignThread(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.EnsureThread(ctx, "u1", "", "t-owned"); err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}

	_, err := client.EnsureThread(ctx, "u2", "t-owned", "")
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("foreign thread error code = %v, want not_found", apperr.CodeOf(err))
	}

	_, err = client.EnsureThread(ctx, "u1", "t-missing", "")
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("missing thread error code = %v, want not_found", apperr.CodeOf(err))
	}
}

func TestUpdateThreadTitleOnlyOnce(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.EnsureThread(ctx, "u1", "", "t1"); err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}

	if err := client.UpdateThreadTitle(ctx, "t1", "first title"); err != nil {
		t.Fatalf("UpdateThreadTitle: %v", err)
	}
	if err := client.UpdateThreadTitle(ctx, "t1", "second title"); err != nil {
		t.Fatalf("UpdateThreadTitle again: %v", err)
	}

	thread, err := client.EnsureThread(ctx, "u1", "t1", "")
	if err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	if thread.Title != "first title" {
		t.Errorf("title = %q, want %q", thread.Title, "first title")
	}
}

func TestUpdateThreadTitleSkippedAfterMessages(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.EnsureThread(ctx, "u1", "", "t1"); err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	insertTestMessage(t, client, "t1", models.RoleUser, "hello", time.Now())

	if err := client.UpdateThreadTitle(ctx, "t1", "late title"); err != nil {
		t.Fatalf("UpdateThreadTitle: %v", err)
	}

	thread, err := client.EnsureThread(ctx, "u1", "t1", "")
	if err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	if thread.Title != "" {
		t.Errorf("title = %q, want empty", thread.Title)
	}
}

func TestInsertMessageBumpsThreadCount(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.EnsureThread(ctx, "u1", "", "t1"); err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}

	base := time.Now()
	insertTestMessage(t, client, "t1", models.RoleUser, "q", base)
	insertTestMessage(t, client, "t1", models.RoleAssistant, "a", base.Add(time.Second))

	thread, err := client.EnsureThread(ctx, "u1", "t1", "")
	if err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	if thread.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", thread.MessageCount)
	}
}

func TestLoadThreadHistoryOrderAndLimit(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.EnsureThread(ctx, "u1", "", "t1"); err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 6; i++ {
		insertTestMessage(t, client, "t1", models.RoleUser, fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	history, err := client.LoadThreadHistory(ctx, "t1", 4)
	if err != nil {
		t.Fatalf("LoadThreadHistory: %v", err)
	}

	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}

	// Most recent four, oldest first.
	for i, m := range history {
		want := fmt.Sprintf("msg-%d", i+2)
		if m.Content != want {
			t.Errorf("history[%d] = %q, want %q", i, m.Content, want)
		}
	}
}

func TestListMessagesRoundTripsFlags(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.EnsureThread(ctx, "u1", "", "t1"); err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}

	err := client.InsertMessage(ctx, &models.Message{
		ID:                "m1",
		ThreadID:          "t1",
		Role:              models.RoleAssistant,
		Content:           "answer",
		Capability:        "keyword-insights",
		ModelID:           "gpt-4",
		InputTokens:       100,
		OutputTokens:      50,
		UsedRAG:           true,
		FallbackToGeneric: true,
		SourcesJSON:       `[{"id":"kw-1"}]`,
		CreatedAt:         time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	msgs, err := client.ListMessages(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}

	m := msgs[0]
	if !m.UsedRAG || !m.FallbackToGeneric || m.InsufficientContext {
		t.Errorf("flags = used_rag=%v fallback=%v insufficient=%v", m.UsedRAG, m.FallbackToGeneric, m.InsufficientContext)
	}
	if m.ModelID != "gpt-4" || m.InputTokens != 100 || m.OutputTokens != 50 {
		t.Errorf("model fields not round-tripped: %+v", m)
	}
	if m.SourcesJSON != `[{"id":"kw-1"}]` {
		t.Errorf("sources_json = %q", m.SourcesJSON)
	}
}

func TestSearchKeywordsByTermAndMarket(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	keywords := []models.Keyword{
		{ID: "kw-1", Phrase: "yoga mat non slip", Market: "US", SearchVolume: 5000, UpdatedAt: now},
		{ID: "kw-2", Phrase: "yoga block set", Market: "UK", SearchVolume: 1200, UpdatedAt: now},
		{ID: "kw-3", Phrase: "garden hose", Market: "US", SearchVolume: 800, UpdatedAt: now},
	}
	for i := range keywords {
		if err := client.InsertKeyword(ctx, &keywords[i]); err != nil {
			t.Fatalf("InsertKeyword: %v", err)
		}
	}

	got, err := client.SearchKeywords(ctx, []string{"yoga"}, []string{"US"}, nil, 10)
	if err != nil {
		t.Fatalf("SearchKeywords: %v", err)
	}
	if len(got) != 1 || got[0].ID != "kw-1" {
		t.Errorf("SearchKeywords = %+v, want only kw-1", got)
	}

	got, err = client.SearchKeywords(ctx, nil, nil, []string{"kw-2"}, 10)
	if err != nil {
		t.Fatalf("SearchKeywords by id: %v", err)
	}
	if len(got) != 1 || got[0].ID != "kw-2" {
		t.Errorf("SearchKeywords by id = %+v, want only kw-2", got)
	}
}

func TestSearchListingsScopedToUser(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	listings := []models.Listing{
		{ID: "ls-1", UserID: "u1", Market: "US", Title: "Premium Yoga Mat", UpdatedAt: now},
		{ID: "ls-2", UserID: "u2", Market: "US", Title: "Budget Yoga Mat", UpdatedAt: now},
	}
	for i := range listings {
		if err := client.InsertListing(ctx, &listings[i]); err != nil {
			t.Fatalf("InsertListing: %v", err)
		}
	}

	got, err := client.SearchListings(ctx, "u1", []string{"yoga"}, nil, 10)
	if err != nil {
		t.Fatalf("SearchListings: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ls-1" {
		t.Errorf("SearchListings = %+v, want only u1's listing", got)
	}
}

func TestSearchAlertsTimeRange(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	alerts := []models.Alert{
		{ID: "al-old", UserID: "u1", Market: "US", Kind: "price", Message: "old", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "al-new", UserID: "u1", Market: "US", Kind: "price", Message: "new", CreatedAt: now.Add(-1 * time.Hour)},
	}
	for i := range alerts {
		if err := client.InsertAlert(ctx, &alerts[i]); err != nil {
			t.Fatalf("InsertAlert: %v", err)
		}
	}

	got, err := client.SearchAlerts(ctx, "u1", nil, nil, now.Add(-24*time.Hour), now, 10)
	if err != nil {
		t.Fatalf("SearchAlerts: %v", err)
	}
	if len(got) != 1 || got[0].ID != "al-new" {
		t.Errorf("SearchAlerts = %+v, want only al-new", got)
	}
}

func TestInsertTrainingSample(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	sample := &models.TrainingSample{
		ID:          "ts-1",
		UserID:      "u1",
		Capability:  "keyword-insights",
		Market:      "US",
		Prompt:      "prompt text",
		Response:    "response text",
		SourcesJSON: "[]",
		CollectedAt: time.Now(),
	}
	if err := client.InsertTrainingSample(ctx, sample); err != nil {
		t.Fatalf("InsertTrainingSample: %v", err)
	}

	var count int
	err := client.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM training_samples WHERE user_id = ?`, "u1").Scan(&count)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("training sample count = %d, want 1", count)
	}
}

func TestDocumentAndChunkInsert(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	doc := &models.Document{ID: "d1", Title: "Image requirements", CreatedAt: now, UpdatedAt: now}
	if err := client.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	chunk := &models.DocumentChunk{ID: "d1_chunk_0", DocID: "d1", ChunkIndex: 0, Text: "chunk text", CreatedAt: now}
	if err := client.InsertChunk(ctx, chunk); err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}

	orphan := &models.DocumentChunk{ID: "x_chunk_0", DocID: "missing-doc", ChunkIndex: 0, Text: "orphan", CreatedAt: now}
	if err := client.InsertChunk(ctx, orphan); err == nil {
		t.Error("expected foreign key violation for orphan chunk")
	} else if errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error kind: %v", err)
	}
}
