package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
	"studio/internal/storage"
)

// PostgresStore archives batches into the batch_history table. Asset
// bytes are written to the file store and referenced by key; the table
// holds metadata only.
type PostgresStore struct {
	sql    infra.SQLExecutor
	assets *storage.FileStore
	logger infra.Logger
}

func NewPostgresStore(sql infra.SQLExecutor, assets *storage.FileStore, logger infra.Logger) *PostgresStore {
	return &PostgresStore{sql: sql, assets: assets, logger: logger}
}

func (s *PostgresStore) Append(ctx context.Context, entry domain.HistoryEntry) (string, error) {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	records := make([]ItemRecord, 0, len(entry.Items))
	for i, it := range entry.Items {
		photoKey := s.persist(ctx, id, i, "photo", it.PhotoResult)
		videoKey := s.persist(ctx, id, i, "video", it.VideoResult)
		records = append(records, itemRecord(it, photoKey, videoKey))
	}

	paramsJSON, err := json.Marshal(paramsRecord(entry.Params))
	if err != nil {
		return "", fmt.Errorf("history: encode params: %w", err)
	}
	itemsJSON, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("history: encode items: %w", err)
	}

	if _, err := s.sql.Exec(ctx, sqlinline.QInsertHistoryEntry, id, paramsJSON, itemsJSON, createdAt); err != nil {
		return "", fmt.Errorf("history: insert entry: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListHistoryEntries)
	if err != nil {
		return nil, fmt.Errorf("history: list entries: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			paramsJSON []byte
			itemsJSON  []byte
		)
		if err := rows.Scan(&rec.ID, &paramsJSON, &itemsJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		if err := json.Unmarshal(paramsJSON, &rec.Params); err != nil {
			return nil, fmt.Errorf("history: decode params: %w", err)
		}
		if err := json.Unmarshal(itemsJSON, &rec.Items); err != nil {
			return nil, fmt.Errorf("history: decode items: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteHistoryEntry, id)
	if err != nil {
		return fmt.Errorf("history: delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QClearHistory); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QPurgeHistoryBefore, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// persist writes one asset to the file store and returns its key; a nil
// media or a write failure yields an empty key, never a failed archive.
func (s *PostgresStore) persist(ctx context.Context, entryID string, index int, kind string, media *domain.Media) string {
	if s.assets == nil || media == nil || media.IsZero() {
		return ""
	}
	key := fmt.Sprintf("history/%s/%s-%02d%s", entryID, kind, index+1, extensionForMIME(media.MIME))
	saved, err := s.assets.Write(ctx, key, media.Data)
	if err != nil {
		s.logger.Warn().Err(err).Str("entry_id", entryID).Msg("history: persist asset failed")
		return ""
	}
	return saved
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}

var _ Store = (*PostgresStore)(nil)
