package store

import (
	"testing"
	"time"

	"github.com/pavelanni/exambank/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var created = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func bankMCQ(id, subject string) model.BankQuestion {
	return model.BankQuestion{
		ID: id, Subject: subject, Topic: "Optics", Difficulty: model.DifficultyEasy, Type: model.BankTypeMCQ,
		Text:        "What bends light?",
		MCQ:         &model.MCQContent{Options: [4]string{"lens", "mirror", "rock", "air"}, CorrectAnswer: "A"},
		UsedInExams: []string{},
		CreatedAt:   created,
	}
}

func bankCoding(id string) model.BankQuestion {
	return model.BankQuestion{
		ID: id, Subject: "CS", Topic: "Loops", Difficulty: model.DifficultyHard, Type: model.BankTypeCoding,
		Text: "Sum two numbers",
		Coding: &model.CodingContent{
			SampleInput: "1 2", SampleOutput: "3", TimeLimit: 2,
			TestCases: []model.TestCase{{ID: id + "-tc-1", Input: "2 2", ExpectedOutput: "4", IsHidden: true}},
		},
		UsedInExams: []string{"t1"},
		UsageCount:  1,
		CreatedAt:   created,
	}
}

func TestBankQuestions(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListBankQuestions()
	if err != nil {
		t.Fatalf("ListBankQuestions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty bank, got %d", len(list))
	}

	if err := s.UpsertBankQuestions([]model.BankQuestion{bankMCQ("PHY-1", "Physics"), bankCoding("CS-1")}); err != nil {
		t.Fatalf("UpsertBankQuestions: %v", err)
	}

	list, err = s.ListBankQuestions()
	if err != nil {
		t.Fatalf("ListBankQuestions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(list))
	}
	if list[0].ID != "PHY-1" || list[1].ID != "CS-1" {
		t.Errorf("expected insertion order, got %s, %s", list[0].ID, list[1].ID)
	}
	if list[0].MCQ == nil || list[0].MCQ.Options[1] != "mirror" {
		t.Errorf("mcq content not restored: %+v", list[0].MCQ)
	}
	if list[1].Coding == nil || len(list[1].Coding.TestCases) != 1 || !list[1].Coding.TestCases[0].IsHidden {
		t.Errorf("coding content not restored: %+v", list[1].Coding)
	}
	if !list[1].CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, list[1].CreatedAt)
	}

	// Upsert replaces in place.
	updated := bankMCQ("PHY-1", "Physics")
	updated.UsedInExams = []string{"t9"}
	updated.UsageCount = 3
	if err := s.UpsertBankQuestions([]model.BankQuestion{updated}); err != nil {
		t.Fatalf("UpsertBankQuestions: %v", err)
	}
	list, _ = s.ListBankQuestions()
	if len(list) != 2 || list[0].ID != "PHY-1" || list[0].UsageCount != 3 {
		t.Fatalf("expected in-place update, got %+v", list)
	}

	if err := s.DeleteBankQuestions([]string{"PHY-1", "missing"}); err != nil {
		t.Fatalf("DeleteBankQuestions: %v", err)
	}
	count, err := s.BankQuestionCount()
	if err != nil {
		t.Fatalf("BankQuestionCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 question after delete, got %d", count)
	}
}

func TestTestsQuestionsAttempts(t *testing.T) {
	s := newTestStore(t)

	test := model.Test{ID: "t1", Title: "Midterm", Status: model.TestDraft, PassingScore: 70, CreatedAt: created}
	if err := s.UpsertTest(test); err != nil {
		t.Fatalf("UpsertTest: %v", err)
	}
	test.Status = model.TestPublished
	if err := s.UpsertTest(test); err != nil {
		t.Fatalf("UpsertTest: %v", err)
	}
	got, err := s.GetTest("t1")
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if got == nil || got.Status != model.TestPublished || got.PassingScore != 70 {
		t.Fatalf("unexpected test: %+v", got)
	}
	if missing, err := s.GetTest("nope"); err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing test, got %+v, %v", missing, err)
	}

	qs := []model.Question{
		{ID: "q2", TestID: "t1", Type: model.KindCoding, Text: "code", Points: 5, Order: 2},
		{ID: "q1", TestID: "t1", Type: model.KindMCQ, Text: "pick", Points: 2, Order: 1,
			Options: []model.Option{{ID: "A", Text: "a", IsCorrect: true}, {ID: "B", Text: "b"}}},
		{ID: "x1", TestID: "t2", Type: model.KindMCQ, Text: "other", Order: 1},
	}
	if err := s.UpsertQuestions(qs); err != nil {
		t.Fatalf("UpsertQuestions: %v", err)
	}
	list, err := s.ListQuestions("t1")
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "q1" || list[1].ID != "q2" {
		t.Fatalf("expected q1, q2 in order, got %+v", list)
	}
	if !list[0].Options[0].IsCorrect {
		t.Errorf("answer key not restored")
	}
	all, _ := s.ListQuestions("")
	if len(all) != 3 {
		t.Errorf("expected 3 questions overall, got %d", len(all))
	}

	done := created.Add(20 * time.Minute)
	attempts := []model.Attempt{
		{ID: "a1", TestID: "t1", Candidate: model.Candidate{ID: "stu-1"}, Status: model.AttemptInProgress, StartedAt: created},
		{ID: "a2", TestID: "t1", Candidate: model.Candidate{ID: "stu-2"}, Status: model.AttemptCompleted,
			StartedAt: created.Add(time.Minute), CompletedAt: &done, Score: 2, Percentage: 29,
			Responses: []model.QuestionResponse{{QuestionID: "q1", SelectedOptions: []string{"A"}, IsCorrect: true, PointsEarned: 2}}},
	}
	for _, a := range attempts {
		if err := s.UpsertAttempt(a); err != nil {
			t.Fatalf("UpsertAttempt: %v", err)
		}
	}
	attempts[0].Status = model.AttemptAbandoned
	if err := s.UpsertAttempt(attempts[0]); err != nil {
		t.Fatalf("UpsertAttempt: %v", err)
	}

	stored, err := s.ListAttempts("t1")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(stored) != 2 || stored[0].ID != "a1" {
		t.Fatalf("unexpected attempts: %+v", stored)
	}
	if stored[0].Status != model.AttemptAbandoned {
		t.Errorf("expected abandoned, got %q", stored[0].Status)
	}
	if stored[1].CompletedAt == nil || !stored[1].CompletedAt.Equal(done) {
		t.Errorf("completed_at not restored: %v", stored[1].CompletedAt)
	}

	if err := s.DeleteAttempts([]string{"a1"}); err != nil {
		t.Fatalf("DeleteAttempts: %v", err)
	}
	if err := s.DeleteQuestions([]string{"q2"}); err != nil {
		t.Fatalf("DeleteQuestions: %v", err)
	}
	if err := s.DeleteTest("t1"); err != nil {
		t.Fatalf("DeleteTest: %v", err)
	}
	tests, _ := s.ListTests()
	stored, _ = s.ListAttempts("")
	list, _ = s.ListQuestions("t1")
	if len(tests) != 0 || len(stored) != 1 || len(list) != 1 {
		t.Errorf("unexpected rows after delete: tests=%d attempts=%d questions=%d", len(tests), len(stored), len(list))
	}
}

func TestExportTest(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertTest(model.Test{ID: "t1", Title: "Quiz", Subject: "Physics", CreatedAt: created}); err != nil {
		t.Fatalf("UpsertTest: %v", err)
	}
	if err := s.UpsertQuestions([]model.Question{
		{ID: "q1", TestID: "t1", Type: model.KindMCQ, Text: "pick", Points: 4, Order: 1},
		{ID: "q2", TestID: "t1", Type: model.KindCoding, Text: "code", Points: 6, Order: 2},
	}); err != nil {
		t.Fatalf("UpsertQuestions: %v", err)
	}
	for i, a := range []model.Attempt{
		{ID: "a1", TestID: "t1", Candidate: model.Candidate{ID: "stu-1"}, Status: model.AttemptCompleted, Score: 4, Percentage: 40,
			Responses: []model.QuestionResponse{{QuestionID: "q1", SelectedOptions: []string{"B"}, IsCorrect: true, PointsEarned: 4}}},
		{ID: "a2", TestID: "t1", Candidate: model.Candidate{ID: "stu-1"}, Status: model.AttemptCompleted, Score: 10, Percentage: 100, Passed: true},
		{ID: "a3", TestID: "t1", Candidate: model.Candidate{ID: "stu-2"}, Status: model.AttemptInProgress},
	} {
		a.StartedAt = created.Add(time.Duration(i) * time.Minute)
		if err := s.UpsertAttempt(a); err != nil {
			t.Fatalf("UpsertAttempt: %v", err)
		}
	}

	exp, err := s.ExportTest("t1")
	if err != nil {
		t.Fatalf("ExportTest: %v", err)
	}
	if exp.MaxScore != 10 || exp.NumQuestions != 2 || exp.PassingScore != model.DefaultPassingScore {
		t.Errorf("unexpected header: %+v", exp)
	}
	if len(exp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(exp.Results))
	}

	tests := []struct {
		idx        int
		wantNumber int
		wantStatus model.AttemptStatus
	}{
		{0, 1, model.AttemptCompleted},
		{1, 2, model.AttemptCompleted},
		{2, 1, model.AttemptInProgress},
	}
	for _, tt := range tests {
		r := exp.Results[tt.idx]
		if r.AttemptNumber != tt.wantNumber {
			t.Errorf("result %d: expected attempt number %d, got %d", tt.idx, tt.wantNumber, r.AttemptNumber)
		}
		if r.Status != tt.wantStatus {
			t.Errorf("result %d: expected status %q, got %q", tt.idx, tt.wantStatus, r.Status)
		}
		if len(r.Questions) != 2 {
			t.Errorf("result %d: expected 2 question rows, got %d", tt.idx, len(r.Questions))
		}
	}
	first := exp.Results[0].Questions[0]
	if !first.IsCorrect || first.PointsEarned != 4 || len(first.SelectedOptions) != 1 {
		t.Errorf("unexpected question result: %+v", first)
	}

	if _, err := s.ExportTest("missing"); err == nil {
		t.Error("expected error for missing test")
	}
	all, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 export, got %d", len(all))
	}
}

func TestUsersAndSessions(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateUser(model.User{
		Username: "teacher", DisplayName: "T. Eacher", Email: "t@example.com",
		PasswordHash: "hash", Role: model.UserRoleTeacher, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(model.User{Username: "teacher", PasswordHash: "x", Role: model.UserRoleStudent}); err == nil {
		t.Error("expected duplicate username to fail")
	}

	u, err := s.GetUserByUsername("teacher")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername: %v, %v", u, err)
	}
	if u.ID != id || u.Email != "t@example.com" || u.Role != model.UserRoleTeacher || !u.Active {
		t.Errorf("unexpected user: %+v", u)
	}
	if missing, err := s.GetUserByUsername("nobody"); err != nil || missing != nil {
		t.Errorf("expected nil user, got %+v, %v", missing, err)
	}

	if err := s.SetUserPassword(id, "newhash"); err != nil {
		t.Fatalf("SetUserPassword: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if u.PasswordHash != "newhash" {
		t.Errorf("expected password hash to change")
	}

	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}
	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil || sess.UserID != id {
		t.Fatalf("GetAuthSession: %+v, %v", sess, err)
	}

	// Deactivating drops the user's sessions.
	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("expected session to be removed on deactivation")
	}
	u, _ = s.GetUserByID(id)
	if u.Active {
		t.Error("expected user to be inactive")
	}

	// Expired sessions are not returned.
	token, _ = s.CreateAuthSession(id)
	if _, err := s.db.Exec(`UPDATE auth_sessions SET expires_at = ? WHERE id = ?`, time.Now().Add(-time.Hour), token); err != nil {
		t.Fatalf("expire session: %v", err)
	}
	if sess, err := s.GetAuthSession(token); err != nil || sess != nil {
		t.Errorf("expected expired session to be gone, got %+v, %v", sess, err)
	}

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}
	count, _ := s.UserCount()
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	if err != nil || v != "" {
		t.Fatalf("expected empty value, got %q, %v", v, err)
	}
	if err := s.SetMetadata("k", "one"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("k", "two"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if v, _ := s.GetMetadata("k"); v != "two" {
		t.Errorf("expected two, got %q", v)
	}

	id1, err := s.InstanceID()
	if err != nil || id1 == "" {
		t.Fatalf("InstanceID: %q, %v", id1, err)
	}
	id2, _ := s.InstanceID()
	if id1 != id2 {
		t.Errorf("instance id changed: %s != %s", id1, id2)
	}

	reset, err := s.LastBankReset()
	if err != nil || !reset.IsZero() {
		t.Errorf("expected zero reset time, got %v, %v", reset, err)
	}
	if err := s.MarkBankReset(created); err != nil {
		t.Fatalf("MarkBankReset: %v", err)
	}
	reset, _ = s.LastBankReset()
	if !reset.Equal(created) {
		t.Errorf("expected %v, got %v", created, reset)
	}
}

func TestImportRecords(t *testing.T) {
	s := newTestStore(t)
	hash := HashContent([]byte("id,subject\n"))
	if hash != HashContent([]byte("id,subject\n")) || len(hash) != 64 {
		t.Fatalf("unexpected hash %q", hash)
	}

	rec, err := s.GetImport(hash)
	if err != nil || rec != nil {
		t.Fatalf("expected no record, got %+v, %v", rec, err)
	}
	if err := s.RecordImport(ImportRecord{Hash: hash, Filename: "bank.csv", Added: 10, Rejected: 2, ImportedAt: created}); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	if err := s.RecordImport(ImportRecord{Hash: hash, Filename: "bank-v2.csv", Added: 0, Rejected: 2, ImportedAt: created.Add(time.Hour)}); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	rec, err = s.GetImport(hash)
	if err != nil || rec == nil {
		t.Fatalf("GetImport: %+v, %v", rec, err)
	}
	if rec.Filename != "bank-v2.csv" || rec.Added != 0 {
		t.Errorf("expected latest record, got %+v", rec)
	}
	list, err := s.ListImports()
	if err != nil || len(list) != 1 {
		t.Errorf("ListImports: %d, %v", len(list), err)
	}
}
