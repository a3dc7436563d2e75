package store

import (
	"fmt"
	"strings"
)

type column struct {
	name string
	ddl  string
}

// table describes one record class. The leading keyLen columns form the natural key.
type table struct {
	name    string
	keyLen  int
	columns []column
}

var (
	onDemandTable = table{
		name:   "on_demand",
		keyLen: 2,
		columns: []column{
			{"region", "TEXT NOT NULL"},
			{"instance_type", "TEXT NOT NULL"},
			{"vcpu_count", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
			{"memory", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
			{"price_per_hour", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
			{"architecture", "TEXT NOT NULL DEFAULT ''"},
			{"storage", "TEXT NOT NULL DEFAULT ''"},
		},
	}

	spotTable = table{
		name:   "spot",
		keyLen: 3,
		columns: []column{
			{"region", "TEXT NOT NULL"},
			{"availability_zone", "TEXT NOT NULL"},
			{"instance_type", "TEXT NOT NULL"},
			{"price_per_hour", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
		},
	}

	storageTable = table{
		name:   "storage",
		keyLen: 2,
		columns: []column{
			{"region", "TEXT NOT NULL"},
			{"volume_api_name", "TEXT NOT NULL"},
			{"storage_media", "TEXT NOT NULL DEFAULT ''"},
			{"price_per_gb_month", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
		},
	}

	interRegionTable = table{
		name:   "inter_region_data_transfer",
		keyLen: 2,
		columns: []column{
			{"from_region_code", "TEXT NOT NULL"},
			{"to_region_code", "TEXT NOT NULL"},
			{"price_per_gb", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
		},
	}

	externalTable = table{
		name:   "external_data_transfer",
		keyLen: 3,
		columns: []column{
			{"from_region_code", "TEXT NOT NULL"},
			{"start_range", "DOUBLE PRECISION NOT NULL"},
			{"end_range", "DOUBLE PRECISION NOT NULL"},
			{"price_per_gb", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
		},
	}

	tables = []table{onDemandTable, spotTable, storageTable, interRegionTable, externalTable}
)

func (t table) names(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// upsertSQL renders a multi-row insert of n rows that overwrites value columns on a
// natural key collision.
func (t table) upsertSQL(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s, updated_at)\nVALUES ", t.name, strings.Join(t.names(t.columns), ", "))

	width := len(t.columns)
	for row := 0; row < n; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for col := 0; col < width; col++ {
			fmt.Fprintf(&b, "$%d, ", row*width+col+1)
		}
		b.WriteString("NOW())")
	}

	fmt.Fprintf(&b, "\nON CONFLICT (%s)\nDO UPDATE SET ", strings.Join(t.names(t.columns[:t.keyLen]), ", "))
	for _, c := range t.columns[t.keyLen:] {
		fmt.Fprintf(&b, "%s = EXCLUDED.%s, ", c.name, c.name)
	}
	b.WriteString("updated_at = NOW()")
	return b.String()
}

func (t table) createSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.name)
	for _, c := range t.columns {
		fmt.Fprintf(&b, "\t%s %s,\n", c.name, c.ddl)
	}
	b.WriteString("\tupdated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),\n")
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n)", strings.Join(t.names(t.columns[:t.keyLen]), ", "))
	return b.String()
}

// dedupe keeps the last row for each natural key, at the position the key first appeared.
func (t table) dedupe(rows [][]interface{}) [][]interface{} {
	index := make(map[string]int, len(rows))
	out := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, t.keyLen)
		for i, v := range row[:t.keyLen] {
			parts[i] = fmt.Sprint(v)
		}
		key := strings.Join(parts, "\x00")
		if i, ok := index[key]; ok {
			out[i] = row
			continue
		}
		index[key] = len(out)
		out = append(out, row)
	}
	return out
}

func chunkRows(rows [][]interface{}, size int) [][][]interface{} {
	if size <= 0 {
		size = 1
	}
	var chunks [][][]interface{}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
