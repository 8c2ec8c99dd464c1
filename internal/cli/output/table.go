package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// plainStyle applies the borderless, unaligned-header look every
// querysync table command (status, fetch) uses instead of
// tablewriter's boxed default.
func plainStyle(table *tablewriter.Table) {
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
}

// TableRenderer is implemented by types with a multi-row, multi-column
// shape worth rendering as a table rather than a SimpleTable key/value
// pair list — e.g. a future `querysync queries list`.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a formatted table to the writer.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())
	table.SetAutoFormatHeaders(true)
	table.SetColumnSeparator("")
	plainStyle(table)

	for _, row := range data.Rows() {
		table.Append(row)
	}

	table.Render()
	return nil
}

// TableData is a slice-backed TableRenderer for ad-hoc tables a command
// builds up row by row before printing.
type TableData struct {
	headers []string
	rows    [][]string
}

func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *TableData) Headers() []string {
	return t.headers
}

func (t *TableData) Rows() [][]string {
	return t.rows
}

// SimpleTable prints an unheadered key/value table — the shape `status`
// and `fetch` use for their table-format output.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetColumnSeparator(":")
	plainStyle(table)

	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}

	table.Render()
	return nil
}
