package dataio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const endHeader = "endheader"

// ReadSTO parses an OpenSim storage file: a free-form header closed by "endheader",
// a tab separated label row, then whitespace separated numeric rows. The first header
// line, when it is not a key=value pair, names the table.
func ReadSTO(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	name := ""
	line := 0
	sawEnd := false
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(text, endHeader) {
			sawEnd = true
			break
		}
		if line == 1 && text != "" && !strings.Contains(text, "=") {
			name = text
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if !sawEnd {
		return nil, fmt.Errorf("missing %q line", endHeader)
	}

	var table *Table
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if table == nil {
			table = NewTable(name, splitLabels(text)...)
			continue
		}
		row, err := parseRow(strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := table.AppendRow(row...); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if table == nil {
		return nil, fmt.Errorf("missing column labels after %q", endHeader)
	}
	return table, nil
}

// WriteSTO writes a version 1 storage file with a tab separated body
func WriteSTO(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	name := t.Name
	if name == "" {
		name = "table"
	}
	fmt.Fprintf(bw, "%s\n", name)
	fmt.Fprintf(bw, "version=1\n")
	fmt.Fprintf(bw, "nRows=%d\n", len(t.Rows))
	fmt.Fprintf(bw, "nColumns=%d\n", len(t.Columns))
	fmt.Fprintf(bw, "inDegrees=no\n")
	fmt.Fprintf(bw, "%s\n", endHeader)
	fmt.Fprintf(bw, "%s\n", strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		for i, v := range row {
			if i > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func splitLabels(text string) []string {
	var labels []string
	if strings.Contains(text, "\t") {
		labels = strings.Split(text, "\t")
	} else {
		labels = strings.Fields(text)
	}
	for i := range labels {
		labels[i] = strings.TrimSpace(labels[i])
	}
	return labels
}
