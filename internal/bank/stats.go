package bank

import "github.com/pavelanni/exambank/internal/model"

// Stats aggregates the bank contents.
type Stats struct {
	Total        int                            `json:"total"`
	ByDifficulty map[model.Difficulty]int       `json:"by_difficulty"`
	ByType       map[model.BankQuestionType]int `json:"by_type"`
	BySubject    map[string]int                 `json:"by_subject"`
	ByTopic      map[string]int                 `json:"by_topic"`
	Used         int                            `json:"used"`
	Unused       int                            `json:"unused"`
}

// Stats counts questions by difficulty, type, subject and topic, and splits
// them into used (placed on at least one exam) and unused.
func (s *Store) Stats() Stats {
	st := Stats{
		ByDifficulty: make(map[model.Difficulty]int),
		ByType:       make(map[model.BankQuestionType]int),
		BySubject:    make(map[string]int),
		ByTopic:      make(map[string]int),
	}
	for _, d := range model.Difficulties {
		st.ByDifficulty[d] = 0
	}
	for _, q := range s.All() {
		st.Total++
		st.ByDifficulty[q.Difficulty]++
		st.ByType[q.Type]++
		st.BySubject[q.Subject]++
		st.ByTopic[q.Topic]++
		if len(q.UsedInExams) > 0 {
			st.Used++
		} else {
			st.Unused++
		}
	}
	return st
}
