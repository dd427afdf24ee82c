// Package report renders calendar occurrences for the terminal.
package report

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"afishacal/internal/model"
)

const allDayLabel = "весь день"

// Options controls the occurrence table.
type Options struct {
	// ShowURL adds a column with the film page.
	ShowURL bool
}

// OccurrenceTable renders occurrences as a rounded table, one row each, in
// the order given. An empty slice renders the header only.
func OccurrenceTable(occs []model.Occurrence, opts Options) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := table.Row{"Дата", "Время", "Фильм"}
	if opts.ShowURL {
		header = append(header, "Ссылка")
	}
	tw.AppendHeader(header)

	for _, o := range occs {
		when := allDayLabel
		if !o.AllDay {
			when = o.Start.Format("15:04")
		}
		row := table.Row{o.Start.Format("02.01.2006 Mon"), when, o.Summary}
		if opts.ShowURL {
			row = append(row, o.URL)
		}
		tw.AppendRow(row)
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignLeft, WidthMax: 60},
	})
	tw.AppendFooter(table.Row{"", "", countLabel(len(occs))})

	return tw.Render()
}

func countLabel(n int) string {
	return "всего: " + strconv.Itoa(n)
}
