package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// writeJSON encodes v as indented JSON to the command's stdout
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type outcomeView struct {
	RequestID string `json:"request_id,omitempty"`
	n8n.Outcome
}

// printOutcome prints o as JSON or as a field table followed by the result
func printOutcome(cmd *cobra.Command, ctx *commandContext, requestID string, o n8n.Outcome) error {
	if *ctx.jsonFlag {
		return writeJSON(cmd, outcomeView{RequestID: requestID, Outcome: o})
	}

	rows := [][]string{{"Success", strconv.FormatBool(o.Success)}}
	if requestID != "" {
		rows = append(rows, []string{"Request", requestID})
	}
	if o.JobID != "" {
		rows = append(rows, []string{"Job", o.JobID})
	}
	if o.Status != "" {
		rows = append(rows, []string{"Status", string(o.Status)})
	}
	if !o.Success {
		rows = append(rows, []string{"Error kind", string(o.ErrorKind)}, []string{"Error", o.Error})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))

	if o.Success {
		fmt.Fprintln(cmd.OutOrStdout(), formatData(o.Data))
	}
	return nil
}

// formatData prints strings as-is, string lists one per line and anything
// else as indented JSON
func formatData(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case []any:
		out := ""
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				raw, _ := json.Marshal(item)
				s = string(raw)
			}
			out += fmt.Sprintf("%d. %s\n", i+1, s)
		}
		return out
	default:
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
