package csvimport

import "strings"

var sampleRows = [][]string{
	{"PHY-001", "Physics", "Mechanics", "Easy", "mcq", "What is the SI unit of force?",
		"Newton", "Joule", "Watt", "Pascal", "A", "Force is measured in newtons (kg*m/s^2).",
		"", "", "", ""},
	{"PHY-002", "Physics", "Mechanics", "Medium", "reasoning",
		"A car doubles its speed. By what factor does its kinetic energy change?",
		"2", "4", "8", "It stays the same", "B", "KE = mv^2/2, so doubling v quadruples KE.",
		"", "", "", ""},
	{"CS-001", "Computer Science", "Arrays", "Hard", "coding",
		"Read n integers and print their sum.",
		"", "", "", "", "", "",
		"3\n1 2 3", "6", `[{"input":"2\n5 5","output":"10"},{"input":"1\n-4","output":"-4"}]`, "2"},
}

// SampleCSV returns a template document in the extended format with one row
// per question shape.
func SampleCSV() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(ExtendedColumns, ","))
	sb.WriteString("\n")
	for _, row := range sampleRows {
		for i, f := range row {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(quote(f))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func quote(field string) string {
	if !strings.ContainsAny(field, ",\"\r\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
