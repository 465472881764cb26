package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"
)

// ImportRecord describes a CSV file that was imported into the bank.
type ImportRecord struct {
	Hash       string    `json:"hash"`
	Filename   string    `json:"filename"`
	Added      int       `json:"added"`
	Rejected   int       `json:"rejected"`
	ImportedAt time.Time `json:"imported_at"`
}

// HashContent returns the hex SHA-256 of an uploaded file.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RecordImport remembers an imported file. Re-importing the same content
// overwrites the earlier record.
func (s *Store) RecordImport(r ImportRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (hash, filename, added, rejected, imported_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET filename = excluded.filename, added = excluded.added,
			rejected = excluded.rejected, imported_at = excluded.imported_at`,
		r.Hash, r.Filename, r.Added, r.Rejected, r.ImportedAt,
	)
	return err
}

// GetImport returns the record for a file hash, or nil if the content was
// never imported.
func (s *Store) GetImport(hash string) (*ImportRecord, error) {
	var r ImportRecord
	err := s.db.QueryRow(
		`SELECT hash, filename, added, rejected, imported_at FROM imported_files WHERE hash = ?`, hash,
	).Scan(&r.Hash, &r.Filename, &r.Added, &r.Rejected, &r.ImportedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListImports returns all import records, newest first.
func (s *Store) ListImports() ([]ImportRecord, error) {
	rows, err := s.db.Query(
		`SELECT hash, filename, added, rejected, imported_at FROM imported_files ORDER BY imported_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ImportRecord{}
	for rows.Next() {
		var r ImportRecord
		if err := rows.Scan(&r.Hash, &r.Filename, &r.Added, &r.Rejected, &r.ImportedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
