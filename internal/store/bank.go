package store

import (
	"encoding/json"
	"fmt"

	"github.com/pavelanni/exambank/internal/model"
)

// UpsertBankQuestions inserts or replaces bank questions by id.
func (s *Store) UpsertBankQuestions(qs []model.BankQuestion) error {
	if len(qs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO bank_questions (id, subject, topic, difficulty, question_type, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			topic = excluded.topic,
			difficulty = excluded.difficulty,
			question_type = excluded.question_type,
			data = excluded.data`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, q := range qs {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode bank question %s: %w", q.ID, err)
		}
		if _, err := stmt.Exec(q.ID, q.Subject, q.Topic, q.Difficulty, q.Type, string(data), q.CreatedAt); err != nil {
			return fmt.Errorf("upsert bank question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteBankQuestions removes bank questions by id.
func (s *Store) DeleteBankQuestions(ids []string) error {
	return s.deleteByID("bank_questions", ids)
}

// ListBankQuestions returns every bank question in insertion order.
func (s *Store) ListBankQuestions() ([]model.BankQuestion, error) {
	rows, err := s.db.Query(`SELECT data FROM bank_questions ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	return scanDocs[model.BankQuestion](rows)
}

// BankQuestionCount returns the number of stored bank questions.
func (s *Store) BankQuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM bank_questions`).Scan(&count)
	return count, err
}
