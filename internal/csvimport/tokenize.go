// Package csvimport turns question-bank CSV documents into bank questions.
//
// The pipeline is Tokenize -> Header/ValidateRow -> Convert, glued together by
// Parse. Tokenizing never fails; every problem surfaces as a FieldError.
package csvimport

import "strings"

// Tokenize splits raw CSV text into rows of fields.
//
// A double quote toggles quoted mode; inside quotes a doubled quote is a
// literal quote. Commas and line breaks (\n or \r\n) only separate fields and
// rows outside quotes. Rows whose fields are all empty are dropped and the last
// row is flushed even without a trailing newline. Malformed quoting is
// tolerated: the scanner keeps going and validation reports the damage.
// A leading UTF-8 byte-order mark is ignored.
func Tokenize(text string) [][]string {
	text = strings.TrimPrefix(text, "\ufeff")
	var (
		rows     [][]string
		row      []string
		field    strings.Builder
		inQuotes bool
	)

	endRow := func() {
		row = append(row, field.String())
		field.Reset()
		if !blank(row) {
			rows = append(rows, row)
		}
		row = nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(text) && text[i+1] == '"' {
				field.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			row = append(row, field.String())
			field.Reset()
		case c == '\n' && !inQuotes:
			endRow()
		case c == '\r' && !inQuotes && i+1 < len(text) && text[i+1] == '\n':
			endRow()
			i++
		default:
			field.WriteByte(c)
		}
	}

	if field.Len() > 0 || len(row) > 0 {
		endRow()
	}
	return rows
}

func blank(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}
