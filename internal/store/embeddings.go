package store

import (
	"fmt"
	"strings"
)

// EmbeddingRow is a stored vector together with the model that made it.
type EmbeddingRow struct {
	ItemID int64  `db:"item_id"`
	Model  string `db:"model"`
	Dims   int    `db:"dims"`
	Vector []byte `db:"vector"`
}

// UpsertEmbedding stores or replaces the vector for an item.
func (s *Store) UpsertEmbedding(itemID int64, model string, dims int, vector []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO embeddings (item_id, model, dims, vector) VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			model = excluded.model, dims = excluded.dims, vector = excluded.vector
	`, itemID, model, dims, vector)
	if err != nil {
		return fmt.Errorf("upsert embedding %d: %w", itemID, err)
	}
	return nil
}

// PurgeEmbeddings deletes all stored vectors. Invoked when the provider
// or model changes, since vectors from different models are not
// comparable.
func (s *Store) PurgeEmbeddings() (int64, error) {
	res, err := s.db.Exec("DELETE FROM embeddings")
	if err != nil {
		return 0, fmt.Errorf("purge embeddings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// HasEmbeddings reports whether any vector has been stored yet.
func (s *Store) HasEmbeddings() (bool, error) {
	var n int
	if err := s.db.Get(&n, "SELECT COUNT(*) FROM embeddings"); err != nil {
		return false, fmt.Errorf("count embeddings: %w", err)
	}
	return n > 0, nil
}

// ItemsMissingEmbedding returns items that have no stored vector.
// When unreadOnly is set the backlog is restricted to unread items,
// which keeps the very first run from walking the entire archive.
func (s *Store) ItemsMissingEmbedding(unreadOnly bool, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
		SELECT i.* FROM items i
		LEFT JOIN embeddings e ON e.item_id = i.id
		WHERE e.item_id IS NULL`
	if unreadOnly {
		q += " AND i.read = 0"
	}
	q += " ORDER BY i.published_at DESC LIMIT ?"

	var items []Item
	if err := s.db.Select(&items, q, limit); err != nil {
		return nil, fmt.Errorf("items missing embedding: %w", err)
	}
	return items, nil
}

// EmbeddingsFor returns the stored vectors for the given item ids.
func (s *Store) EmbeddingsFor(itemIDs []int64) (map[int64]EmbeddingRow, error) {
	out := make(map[int64]EmbeddingRow, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	var rows []EmbeddingRow
	err := s.db.Select(&rows,
		"SELECT * FROM embeddings WHERE item_id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("embeddings for items: %w", err)
	}
	for _, r := range rows {
		out[r.ItemID] = r
	}
	return out, nil
}
