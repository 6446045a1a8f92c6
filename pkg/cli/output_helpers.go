package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// outputFlag is the --output value. It rejects unknown formats at parse time.
type outputFlag string

var _ pflag.Value = (*outputFlag)(nil)

func (o *outputFlag) String() string { return string(*o) }

func (o *outputFlag) Set(v string) error {
	if err := validateOutputFormat(v); err != nil {
		return err
	}
	*o = outputFlag(v)
	return nil
}

func (o *outputFlag) Type() string { return "format" }

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	f := cmd.Root().PersistentFlags().Lookup("output")
	if f == nil {
		return outputTable
	}
	return f.Value.String()
}

func validateOutputFormat(output string) error {
	if output != "" && output != outputTable && output != outputJSON {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// defaultOutputFor picks table for terminals and json for pipes and files.
func defaultOutputFor(w io.Writer) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return outputTable
	}
	return outputJSON
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintTable writes rows under upper-cased column headers.
func PrintTable(w io.Writer, columns []string, rows [][]string) error {
	if len(columns) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(w)
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = strings.ToUpper(c)
	}
	table.Header(header...)
	for _, row := range rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		if err := table.Append(cells...); err != nil {
			return fmt.Errorf("append table row: %w", err)
		}
	}
	return table.Render()
}

// PrintDetail writes one "key: value" line per field, sorted by key with
// aligned values.
func PrintDetail(w io.Writer, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	maxLen := 0
	for k := range fields {
		keys = append(keys, k)
		if len(k) > maxLen {
			maxLen = len(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s:%s  %s\n", k, strings.Repeat(" ", maxLen-len(k)), fields[k])
	}
}
