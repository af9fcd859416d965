package seed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xuri/excelize/v2"

	"github.com/joesaby/gardenqa/graph"
)

// Workbook sheet names.
const (
	NodesSheet = "nodes"
	EdgesSheet = "edges"
)

// ReadXLSX reads a workbook with a nodes sheet (label, name, then one
// column per property) and an edges sheet (type, source, target, then
// property columns). The first row of each sheet is the header. Empty
// cells leave the property unset.
func ReadXLSX(path string) (*Graph, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	nodeRows, err := f.GetRows(NodesSheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s sheet: %w", NodesSheet, err)
	}
	var errs *multierror.Error
	g := &Graph{}
	for i, row := range dataRows(nodeRows) {
		label, name, props := cell(row.cells, 0), cell(row.cells, 1), row.props(2)
		if label == "" || name == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s row %d: label and name are required", NodesSheet, i+2))
			continue
		}
		g.Nodes = append(g.Nodes, graph.Entity{Label: label, Name: name, Properties: props})
	}

	// The edges sheet is optional.
	if idx, _ := f.GetSheetIndex(EdgesSheet); idx >= 0 {
		edgeRows, err := f.GetRows(EdgesSheet)
		if err != nil {
			return nil, fmt.Errorf("reading %s sheet: %w", EdgesSheet, err)
		}
		for i, row := range dataRows(edgeRows) {
			typ, src, tgt := cell(row.cells, 0), cell(row.cells, 1), cell(row.cells, 2)
			if typ == "" || src == "" || tgt == "" {
				errs = multierror.Append(errs, fmt.Errorf("%s row %d: type, source and target are required", EdgesSheet, i+2))
				continue
			}
			g.Relationships = append(g.Relationships, graph.Relationship{
				Type: strings.ToUpper(typ), Source: src, Target: tgt, Properties: row.props(3),
			})
		}
	}
	return g, errs.ErrorOrNil()
}

type sheetRow struct {
	header []string
	cells  []string
}

// dataRows pairs every row after the header with the header.
func dataRows(rows [][]string) []sheetRow {
	if len(rows) < 2 {
		return nil
	}
	header := rows[0]
	out := make([]sheetRow, 0, len(rows)-1)
	for _, r := range rows[1:] {
		out = append(out, sheetRow{header: header, cells: r})
	}
	return out
}

func (r sheetRow) props(from int) map[string]any {
	var props map[string]any
	for i := from; i < len(r.header) && i < len(r.cells); i++ {
		key := strings.TrimSpace(r.header[i])
		v := strings.TrimSpace(r.cells[i])
		if key == "" || v == "" {
			continue
		}
		if props == nil {
			props = make(map[string]any)
		}
		props[key] = cellValue(v)
	}
	return props
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// cellValue converts a cell to an int, float or bool when it reads as one.
func cellValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	return s
}
