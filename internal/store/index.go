package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/apperror"
	"manifold/internal/observability"
)

// IndexRow is the reconcilable metadata-index projection of a Discussion:
// cheap to query for list views without reading the full journal. Its
// columns mirror the "Metadata index" schema of §6 in full: a relational
// table keyed by id, carrying user_id, topic, file paths, token count and
// limit, the installed summary and its timestamp, resolution state, and
// the two user-input-pending flags the gateway surfaces to clients waiting
// on a question round.
type IndexRow struct {
	ID               string
	UserID           string
	Topic            string
	FilePaths        []string
	CurrentRound     int
	CurrentTurn      int
	IsResolved       bool
	LastTokenCount   int
	TokenLimit       int
	Summary          string
	SummaryCreatedAt *time.Time
	NeedsUserInput   bool
	UserInputPending bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// fieldNames lists the columns this row writes, checked against
// indexWritableFields on every Upsert (§6 "writes outside the whitelist
// are rejected as a security violation"). Kept as an explicit literal
// rather than computed via reflection, matching this package's preference
// for explicit Scan/Exec argument lists over a reflection-based mapper.
func (IndexRow) fieldNames() []string {
	return []string{
		"id", "userId", "topic", "filePaths", "currentRound", "currentTurn",
		"isResolved", "lastTokenCount", "tokenLimit", "summary",
		"summaryCreatedAt", "needsUserInput", "userInputPending",
		"createdAt", "updatedAt",
	}
}

// indexWritableFields is the whitelist of metadata-index columns a write
// may touch (§6). Every field IndexRow.fieldNames reports must appear
// here; ValidateIndexFields is the enforcement point each Index
// implementation's Upsert calls before touching storage.
var indexWritableFields = map[string]struct{}{
	"id": {}, "userId": {}, "topic": {}, "filePaths": {}, "currentRound": {},
	"currentTurn": {}, "isResolved": {}, "lastTokenCount": {}, "tokenLimit": {},
	"summary": {}, "summaryCreatedAt": {}, "needsUserInput": {},
	"userInputPending": {}, "createdAt": {}, "updatedAt": {},
}

// ValidateIndexFields rejects any field name outside indexWritableFields,
// the whitelist-enforcement §6 requires on metadata-index writes.
func ValidateIndexFields(fields ...string) error {
	for _, f := range fields {
		if _, ok := indexWritableFields[f]; !ok {
			return apperror.New(apperror.Auth, fmt.Sprintf("metadata index write touches non-whitelisted field %q", f))
		}
	}
	return nil
}

// Index is the metadata-index side of the Discussion Store: a reconcilable
// derivative of the journal, never the source of truth (§4.1).
type Index interface {
	Upsert(ctx context.Context, row IndexRow) error
	Get(ctx context.Context, id string) (IndexRow, bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]IndexRow, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	All(ctx context.Context) ([]IndexRow, error)
}

// BuildIndex opens a Postgres-backed index when dsn resolves to a reachable
// database, otherwise falls back to an in-memory index so the service runs
// standalone (grounded on the teacher's "auto" backend-selection pattern).
func BuildIndex(ctx context.Context, dsn string) Index {
	log := observability.LoggerWithTrace(ctx)
	if dsn == "" {
		return NewMemoryIndex()
	}
	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		log.Warn().Err(err).Msg("metadata_index_postgres_unavailable_falling_back_to_memory")
		return NewMemoryIndex()
	}
	idx := &pgIndex{pool: pool}
	if err := idx.init(ctx); err != nil {
		log.Warn().Err(err).Msg("metadata_index_schema_init_failed_falling_back_to_memory")
		pool.Close()
		return NewMemoryIndex()
	}
	return idx
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// MemoryIndex is the in-process fallback index.
type MemoryIndex struct {
	mu   sync.RWMutex
	rows map[string]IndexRow
}

// NewMemoryIndex builds an empty in-process index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{rows: make(map[string]IndexRow)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, row IndexRow) error {
	if err := ValidateIndexFields(row.fieldNames()...); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.ID] = row
	return nil
}

func (m *MemoryIndex) Get(ctx context.Context, id string) (IndexRow, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	return row, ok, nil
}

func (m *MemoryIndex) ListByUser(ctx context.Context, userID string, limit int) ([]IndexRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []IndexRow
	for _, row := range m.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *MemoryIndex) DeleteAllForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if row.UserID == userID {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *MemoryIndex) All(ctx context.Context) ([]IndexRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]IndexRow, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}
