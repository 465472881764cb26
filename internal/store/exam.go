package store

import (
	"encoding/json"
	"fmt"

	"github.com/pavelanni/exambank/internal/model"
)

// UpsertTest inserts or replaces a test.
func (s *Store) UpsertTest(t model.Test) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode test %s: %w", t.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO tests (id, status, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		t.ID, t.Status, string(data), t.CreatedAt,
	)
	return err
}

// DeleteTest removes a test row. Its questions and attempts are deleted
// separately by the caller.
func (s *Store) DeleteTest(id string) error {
	return s.deleteByID("tests", []string{id})
}

// ListTests returns every test, oldest first.
func (s *Store) ListTests() ([]model.Test, error) {
	rows, err := s.db.Query(`SELECT data FROM tests ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return scanDocs[model.Test](rows)
}

// GetTest returns a test by id, or nil if it does not exist.
func (s *Store) GetTest(id string) (*model.Test, error) {
	rows, err := s.db.Query(`SELECT data FROM tests WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	tests, err := scanDocs[model.Test](rows)
	if err != nil || len(tests) == 0 {
		return nil, err
	}
	return &tests[0], nil
}

// UpsertQuestions inserts or replaces test questions.
func (s *Store) UpsertQuestions(qs []model.Question) error {
	if len(qs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO questions (id, test_id, position, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET test_id = excluded.test_id, position = excluded.position, data = excluded.data`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, q := range qs {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		if _, err := stmt.Exec(q.ID, q.TestID, q.Order, string(data)); err != nil {
			return fmt.Errorf("upsert question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteQuestions removes test questions by id.
func (s *Store) DeleteQuestions(ids []string) error {
	return s.deleteByID("questions", ids)
}

// ListQuestions returns the questions of a test in presentation order. An
// empty testID returns the questions of every test.
func (s *Store) ListQuestions(testID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT data FROM questions WHERE ? = '' OR test_id = ? ORDER BY test_id, position`,
		testID, testID,
	)
	if err != nil {
		return nil, err
	}
	return scanDocs[model.Question](rows)
}

// UpsertAttempt inserts or replaces an attempt.
func (s *Store) UpsertAttempt(a model.Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", a.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO attempts (id, test_id, candidate_id, status, data, started_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		a.ID, a.TestID, a.Candidate.ID, a.Status, string(data), a.StartedAt,
	)
	return err
}

// DeleteAttempts removes attempts by id.
func (s *Store) DeleteAttempts(ids []string) error {
	return s.deleteByID("attempts", ids)
}

// ListAttempts returns the attempts of a test, oldest first. An empty testID
// returns every attempt.
func (s *Store) ListAttempts(testID string) ([]model.Attempt, error) {
	rows, err := s.db.Query(
		`SELECT data FROM attempts WHERE ? = '' OR test_id = ? ORDER BY started_at, id`,
		testID, testID,
	)
	if err != nil {
		return nil, err
	}
	return scanDocs[model.Attempt](rows)
}
