package cli

import (
	"io"
	"strings"
	"text/tabwriter"
)

// writeTable renders rows as a tab-aligned table, headers first when given.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.StripEscape)
	lines := make([]string, 0, len(rows)+1)
	if len(headers) > 0 {
		lines = append(lines, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		lines = append(lines, strings.Join(row, "\t"))
	}
	if _, err := io.WriteString(writer, strings.Join(lines, "\n")+"\n"); err != nil {
		return err
	}
	return writer.Flush()
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// orDash substitutes "-" for empty table cells.
func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
