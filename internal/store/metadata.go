package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metadata keys.
const (
	MetaInstanceID = "instance_id"
	MetaBankReset  = "bank_usage_reset_at"
)

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// InstanceID returns the identifier of this database, creating it on first
// use. Exports carry it so results from different installations can be told
// apart.
func (s *Store) InstanceID() (string, error) {
	id, err := s.GetMetadata(MetaInstanceID)
	if err != nil || id != "" {
		return id, err
	}
	id = uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		MetaInstanceID, id,
	); err != nil {
		return "", fmt.Errorf("store instance id: %w", err)
	}
	return s.GetMetadata(MetaInstanceID)
}

// MarkBankReset records when bank usage tracking was last cleared.
func (s *Store) MarkBankReset(at time.Time) error {
	return s.SetMetadata(MetaBankReset, at.UTC().Format(time.RFC3339))
}

// LastBankReset returns when bank usage was last cleared, or the zero time.
func (s *Store) LastBankReset() (time.Time, error) {
	v, err := s.GetMetadata(MetaBankReset)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}
