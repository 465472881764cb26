package exam

import (
	"github.com/pavelanni/exambank/internal/model"
)

// QuestionStat summarizes how candidates answered one question.
type QuestionStat struct {
	QuestionID  string  `json:"question_id"`
	Order       int     `json:"order"`
	Text        string  `json:"text"`
	Answered    int     `json:"answered"`
	Correct     int     `json:"correct"`
	CorrectRate float64 `json:"correct_rate"` // percent of finalized attempts
}

// Analytics summarizes the attempts of one test. Averages cover finalized
// attempts only.
type Analytics struct {
	TestID             string                      `json:"test_id"`
	Attempts           int                         `json:"attempts"`
	Finalized          int                         `json:"finalized"`
	ByStatus           map[model.AttemptStatus]int `json:"by_status"`
	AveragePercentage  float64                     `json:"average_percentage"`
	HighestPercentage  int                         `json:"highest_percentage"`
	LowestPercentage   int                         `json:"lowest_percentage"`
	PassRate           float64                     `json:"pass_rate"`
	AverageTimeSeconds float64                     `json:"average_time_seconds"`
	AverageTabSwitches float64                     `json:"average_tab_switches"`
	Questions          []QuestionStat              `json:"questions"`
}

// Analytics computes attempt statistics for a test.
func (s *Service) Analytics(testID string) (Analytics, error) {
	questions, err := s.Questions(testID)
	if err != nil {
		return Analytics{}, err
	}
	attempts := s.ListAttempts(testID)

	res := Analytics{
		TestID:    testID,
		Attempts:  len(attempts),
		ByStatus:  make(map[model.AttemptStatus]int),
		Questions: make([]QuestionStat, len(questions)),
	}
	idx := make(map[string]int, len(questions))
	for i, q := range questions {
		idx[q.ID] = i
		res.Questions[i] = QuestionStat{QuestionID: q.ID, Order: q.Order, Text: q.Text}
	}

	var pctSum, timeSum, tabSum float64
	passed := 0
	for _, a := range attempts {
		res.ByStatus[a.Status]++
		if !a.Status.IsFinal() {
			continue
		}
		if res.Finalized == 0 || a.Percentage > res.HighestPercentage {
			res.HighestPercentage = a.Percentage
		}
		if res.Finalized == 0 || a.Percentage < res.LowestPercentage {
			res.LowestPercentage = a.Percentage
		}
		res.Finalized++
		pctSum += float64(a.Percentage)
		timeSum += float64(a.TimeSpentSeconds)
		tabSum += float64(a.TabSwitchCount)
		if a.Passed {
			passed++
		}
		for _, r := range a.Responses {
			i, ok := idx[r.QuestionID]
			if !ok {
				continue
			}
			res.Questions[i].Answered++
			if r.IsCorrect {
				res.Questions[i].Correct++
			}
		}
	}

	if res.Finalized > 0 {
		n := float64(res.Finalized)
		res.AveragePercentage = pctSum / n
		res.PassRate = float64(passed) / n * 100
		res.AverageTimeSeconds = timeSum / n
		res.AverageTabSwitches = tabSum / n
		for i := range res.Questions {
			res.Questions[i].CorrectRate = float64(res.Questions[i].Correct) / n * 100
		}
	}
	return res, nil
}
