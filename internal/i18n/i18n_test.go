package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Exam Bank" {
		t.Errorf("T(AppTitle) = %q, want 'Exam Bank'", got)
	}
	if got := T(ctx, "SelectNoMatches"); got != "No questions match the selection criteria." {
		t.Errorf("T(SelectNoMatches) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "AppTitle"); got != "Банк экзаменов" {
		t.Errorf("T(AppTitle) = %q, want 'Банк экзаменов'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsAvailable", 1); got != "1 question available." {
		t.Errorf("Tp(QuestionsAvailable, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsAvailable", 5); got != "5 questions available." {
		t.Errorf("Tp(QuestionsAvailable, 5) = %q", got)
	}

	ctx = initLang(t, "ru")
	tests := map[int]string{
		1: "Доступен 1 вопрос.",
		3: "Доступно 3 вопроса.",
		7: "Доступно 7 вопросов.",
	}
	for n, want := range tests {
		if got := Tp(ctx, "QuestionsAvailable", n); got != want {
			t.Errorf("Tp(QuestionsAvailable, %d) = %q, want %q", n, got, want)
		}
	}
}

func TestFieldErrorTemplate(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "CSVFieldRequired", map[string]any{"Row": 4, "Field": "subject"})
	if got != "Row 4: subject is required." {
		t.Errorf("Td(CSVFieldRequired) = %q", got)
	}
	got = Td(ctx, "SelectInsufficient", map[string]any{"Selected": 3, "Requested": 10})
	if got != "Only 3 of 10 requested questions are available." {
		t.Errorf("Td(SelectInsufficient) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	langs := Languages()
	if len(langs) != 2 {
		t.Fatalf("expected 2 languages, got %v", langs)
	}
}

func TestMiddlewareNegotiation(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "AppTitle")
	}))

	tests := []struct {
		name   string
		target string
		accept string
		cookie string
		want   string
	}{
		{"no preference", "/", "", "", "Exam Bank"},
		{"accept-language", "/", "ru-RU,ru;q=0.9,en;q=0.5", "", "Банк экзаменов"},
		{"unsupported falls back", "/", "de-DE", "", "Exam Bank"},
		{"cookie", "/", "", "ru", "Банк экзаменов"},
		{"query wins", "/?lang=en", "ru", "ru", "Exam Bank"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookie, Value: tt.cookie})
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
