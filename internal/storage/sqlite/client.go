package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/storage/models"
	"github.com/sellerpulse/backend/pkg/apperr"
	"github.com/sellerpulse/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// DB exposes the underlying handle for components that own their own
// SQL (the quota ledger).
func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT,
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		capability TEXT,
		context_json TEXT,
		model_id TEXT,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		latency_ms INTEGER DEFAULT 0,
		temperature REAL DEFAULT 0,
		used_rag INTEGER DEFAULT 0,
		fallback_generic INTEGER DEFAULT 0,
		insufficient_context INTEGER DEFAULT 0,
		sources_json TEXT,
		training_eligible INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (thread_id) REFERENCES threads(id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);

	CREATE TABLE IF NOT EXISTS quota_ledger (
		user_id TEXT NOT NULL,
		capability TEXT NOT NULL,
		period TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		quota_limit INTEGER NOT NULL,
		PRIMARY KEY (user_id, capability, period)
	);

	CREATE TABLE IF NOT EXISTS keywords (
		id TEXT PRIMARY KEY,
		phrase TEXT NOT NULL,
		market TEXT NOT NULL,
		search_volume INTEGER DEFAULT 0,
		cpc REAL DEFAULT 0,
		competition REAL DEFAULT 0,
		trend REAL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_keywords_market ON keywords(market);

	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		market TEXT NOT NULL,
		asin TEXT,
		title TEXT NOT NULL,
		price REAL DEFAULT 0,
		rating REAL DEFAULT 0,
		reviews INTEGER DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_listings_user ON listings(user_id, market);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		market TEXT NOT NULL,
		keyword_id TEXT,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		severity TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id, created_at);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		market TEXT,
		topic TEXT,
		summary TEXT,
		raw_content TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);

	CREATE TABLE IF NOT EXISTS training_samples (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		capability TEXT NOT NULL,
		market TEXT,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		sources_json TEXT,
		collected_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_training_user ON training_samples(user_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// EnsureThread loads threadID and verifies ownership, or lazily creates
// a new thread for userID when threadID is empty. A thread owned by a
// different user is indistinguishable from a missing one.
func (c *Client) EnsureThread(ctx context.Context, userID, threadID, newID string) (*models.Thread, error) {
	if threadID == "" {
		now := time.Now()
		_, err := c.db.ExecContext(ctx,
			`INSERT INTO threads (id, user_id, message_count, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
			newID, userID, now.Unix(), now.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
		logger.Debug("Thread created", zap.String("thread_id", newID), zap.String("user_id", userID))
		return &models.Thread{ID: newID, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
	}

	var t models.Thread
	var title sql.NullString
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, message_count, created_at, updated_at FROM threads WHERE id = ? AND user_id = ?`,
		threadID, userID,
	).Scan(&t.ID, &t.UserID, &title, &t.MessageCount, &createdAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.CodeNotFound, "thread not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	t.Title = title.String
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

// UpdateThreadTitle sets the title exactly once: only on a thread with
// no prior messages and no title. Later calls are no-ops.
func (c *Client) UpdateThreadTitle(ctx context.Context, threadID, title string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE threads SET title = ? WHERE id = ? AND message_count = 0 AND title IS NULL`,
		title, threadID,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread title: %w", err)
	}
	return nil
}

// InsertMessage appends an immutable message row and bumps the thread
// counters in one transaction. There is no update or delete path for
// messages.
func (c *Client) InsertMessage(ctx context.Context, m *models.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, role, content, capability, context_json, model_id,
			input_tokens, output_tokens, latency_ms, temperature, used_rag, fallback_generic,
			insufficient_context, sources_json, training_eligible, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.Role, m.Content, m.Capability, m.Context, m.ModelID,
		m.InputTokens, m.OutputTokens, m.LatencyMS, m.Temperature,
		boolToInt(m.UsedRAG), boolToInt(m.FallbackToGeneric), boolToInt(m.InsufficientContext),
		m.SourcesJSON, boolToInt(m.TrainingEligible), m.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE threads SET message_count = message_count + 1, updated_at = ? WHERE id = ?`,
		m.CreatedAt.Unix(), m.ThreadID,
	)
	if err != nil {
		return fmt.Errorf("failed to bump thread counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	return nil
}

// LoadThreadHistory returns the most recent limit messages in
// chronological order, oldest first.
func (c *Client) LoadThreadHistory(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, role, content, capability, created_at FROM (
			SELECT id, role, content, capability, created_at, rowid
			FROM messages WHERE thread_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rowid ASC`,
		threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread history: %w", err)
	}
	defer rows.Close()

	var history []models.Message
	for rows.Next() {
		var m models.Message
		var capability sql.NullString
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &capability, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.ThreadID = threadID
		m.Capability = capability.String
		m.CreatedAt = time.Unix(createdAt, 0)
		history = append(history, m)
	}

	return history, rows.Err()
}

// ListMessages returns full message rows for the history endpoint,
// most recent limit messages in chronological order.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, role, content, capability, model_id, input_tokens, output_tokens, latency_ms,
			used_rag, fallback_generic, insufficient_context, sources_json, created_at FROM (
			SELECT id, role, content, capability, model_id, input_tokens, output_tokens, latency_ms,
				used_rag, fallback_generic, insufficient_context, sources_json, created_at, rowid
			FROM messages WHERE thread_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rowid ASC`,
		threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var capability, modelID, sourcesJSON sql.NullString
		var usedRAG, fallback, insufficient int
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &capability, &modelID,
			&m.InputTokens, &m.OutputTokens, &m.LatencyMS,
			&usedRAG, &fallback, &insufficient, &sourcesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.ThreadID = threadID
		m.Capability = capability.String
		m.ModelID = modelID.String
		m.SourcesJSON = sourcesJSON.String
		m.UsedRAG = usedRAG != 0
		m.FallbackToGeneric = fallback != 0
		m.InsufficientContext = insufficient != 0
		m.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// --- structured corpus lookups ---

// SearchKeywords matches the query terms against keyword phrases for
// the given markets and keyword ids.
func (c *Client) SearchKeywords(ctx context.Context, terms []string, markets, keywordIDs []string, limit int) ([]models.Keyword, error) {
	query := `SELECT id, phrase, market, search_volume, cpc, competition, trend, updated_at FROM keywords WHERE 1=1`
	var args []interface{}

	if len(keywordIDs) > 0 {
		query += ` AND id IN (` + placeholders(len(keywordIDs)) + `)`
		for _, id := range keywordIDs {
			args = append(args, id)
		}
	} else if len(terms) > 0 {
		query += ` AND (`
		for i, term := range terms {
			if i > 0 {
				query += ` OR `
			}
			query += `phrase LIKE ?`
			args = append(args, "%"+term+"%")
		}
		query += `)`
	}

	if len(markets) > 0 {
		query += ` AND market IN (` + placeholders(len(markets)) + `)`
		for _, m := range markets {
			args = append(args, m)
		}
	}

	query += ` ORDER BY search_volume DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search keywords: %w", err)
	}
	defer rows.Close()

	var keywords []models.Keyword
	for rows.Next() {
		var k models.Keyword
		var updatedAt int64
		if err := rows.Scan(&k.ID, &k.Phrase, &k.Market, &k.SearchVolume, &k.CPC, &k.Competition, &k.Trend, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		k.UpdatedAt = time.Unix(updatedAt, 0)
		keywords = append(keywords, k)
	}

	return keywords, rows.Err()
}

func (c *Client) SearchListings(ctx context.Context, userID string, terms, markets []string, limit int) ([]models.Listing, error) {
	query := `SELECT id, user_id, market, asin, title, price, rating, reviews, updated_at FROM listings WHERE user_id = ?`
	args := []interface{}{userID}

	if len(terms) > 0 {
		query += ` AND (`
		for i, term := range terms {
			if i > 0 {
				query += ` OR `
			}
			query += `title LIKE ?`
			args = append(args, "%"+term+"%")
		}
		query += `)`
	}

	if len(markets) > 0 {
		query += ` AND market IN (` + placeholders(len(markets)) + `)`
		for _, m := range markets {
			args = append(args, m)
		}
	}

	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		var asin sql.NullString
		var updatedAt int64
		if err := rows.Scan(&l.ID, &l.UserID, &l.Market, &asin, &l.Title, &l.Price, &l.Rating, &l.Reviews, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		l.ASIN = asin.String
		l.UpdatedAt = time.Unix(updatedAt, 0)
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

func (c *Client) SearchAlerts(ctx context.Context, userID string, markets, keywordIDs []string, from, to time.Time, limit int) ([]models.Alert, error) {
	query := `SELECT id, user_id, market, keyword_id, kind, message, severity, created_at FROM alerts WHERE user_id = ?`
	args := []interface{}{userID}

	if len(markets) > 0 {
		query += ` AND market IN (` + placeholders(len(markets)) + `)`
		for _, m := range markets {
			args = append(args, m)
		}
	}
	if len(keywordIDs) > 0 {
		query += ` AND keyword_id IN (` + placeholders(len(keywordIDs)) + `)`
		for _, id := range keywordIDs {
			args = append(args, id)
		}
	}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, to.Unix())
	}

	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var keywordID, severity sql.NullString
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.Market, &keywordID, &a.Kind, &a.Message, &severity, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.KeywordID = keywordID.String
		a.Severity = severity.String
		a.CreatedAt = time.Unix(createdAt, 0)
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// --- corpus writes (ingestion and data sync) ---

func (c *Client) InsertKeyword(ctx context.Context, k *models.Keyword) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO keywords (id, phrase, market, search_volume, cpc, competition, trend, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			search_volume = excluded.search_volume,
			cpc = excluded.cpc,
			competition = excluded.competition,
			trend = excluded.trend,
			updated_at = excluded.updated_at`,
		k.ID, k.Phrase, k.Market, k.SearchVolume, k.CPC, k.Competition, k.Trend, k.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert keyword: %w", err)
	}
	return nil
}

func (c *Client) InsertListing(ctx context.Context, l *models.Listing) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO listings (id, user_id, market, asin, title, price, rating, reviews, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			rating = excluded.rating,
			reviews = excluded.reviews,
			updated_at = excluded.updated_at`,
		l.ID, l.UserID, l.Market, l.ASIN, l.Title, l.Price, l.Rating, l.Reviews, l.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

func (c *Client) InsertAlert(ctx context.Context, a *models.Alert) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO alerts (id, user_id, market, keyword_id, kind, message, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Market, a.KeywordID, a.Kind, a.Message, a.Severity, a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, market, topic, summary, raw_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			raw_content = excluded.raw_content,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Title, doc.Market, doc.Topic, doc.Summary, doc.RawContent,
		doc.CreatedAt.Unix(), doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (c *Client) InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO document_chunks (id, doc_id, chunk_index, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocID, chunk.ChunkIndex, chunk.Text, chunk.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (c *Client) InsertTrainingSample(ctx context.Context, s *models.TrainingSample) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO training_samples (id, user_id, capability, market, prompt, response, sources_json, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Capability, s.Market, s.Prompt, s.Response, s.SourcesJSON, s.CollectedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert training sample: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}
