package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want [][]string
	}{
		{"empty", "", nil},
		{"single row no newline", "a,b,c", [][]string{{"a", "b", "c"}}},
		{"lf rows", "a,b\nc,d\n", [][]string{{"a", "b"}, {"c", "d"}}},
		{"crlf rows", "a,b\r\nc,d\r\n", [][]string{{"a", "b"}, {"c", "d"}}},
		{"quoted comma and escaped quotes", `x,"a, ""quoted"" value",y`,
			[][]string{{"x", `a, "quoted" value`, "y"}}},
		{"newline inside quotes", "\"line1\nline2\",z", [][]string{{"line1\nline2", "z"}}},
		{"blank line dropped", "a,b\n\nc,d", [][]string{{"a", "b"}, {"c", "d"}}},
		{"row of empty fields dropped", "a,b\n,,\nc,d", [][]string{{"a", "b"}, {"c", "d"}}},
		{"trailing empty field kept", "a,\n", [][]string{{"a", ""}}},
		{"unterminated quote swallows rest", "a,\"b\nc,d", [][]string{{"a", "b\nc,d"}}},
		{"lone carriage return kept in field", "a\rb,c", [][]string{{"a\rb", "c"}}},
		{"utf8 passes through", "тема,ü\n", [][]string{{"тема", "ü"}}},
		{"byte order mark stripped", "\ufeffid,subject\n", [][]string{{"id", "subject"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}
