package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is one table column; numeric columns read better right-aligned.
type column struct {
	title string
	right bool
}

// moment renders a timestamp relative to now. A zero timestamp prints "-".
type moment struct {
	at, now time.Time
}

func (m moment) String() string {
	if m.at.IsZero() {
		return "-"
	}
	return humanize.RelTime(m.at, m.now, "ago", "from now")
}

// renderTable draws rows under cols. Counts get thousands separators and
// Stringers such as moment render themselves. Short rows are padded.
func renderTable(cols []column, rows [][]any) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.title
		align := text.AlignLeft
		if c.right {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			var v any
			if i < len(row) {
				v = row[i]
			}
			r[i] = cellText(v)
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return humanize.Comma(int64(x))
	case int64:
		return humanize.Comma(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
