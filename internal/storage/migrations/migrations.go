// Package migrations applies the embedded schema files for both stores.
// Postgres holds the winner ledger; ClickHouse holds append-only cycle
// analytics. All files are written to be idempotent so the runners can
// execute on every startup.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

type sqlFile struct {
	name string
	body string
}

// loadSQL returns the non-empty .sql files under dir in lexical order.
func loadSQL(fsys fs.FS, dir string) ([]sqlFile, error) {
	names, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list %s migrations: %w", dir, err)
	}
	sort.Strings(names)

	files := make([]sqlFile, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		body := string(data)
		if strings.TrimSpace(body) == "" {
			continue
		}
		files = append(files, sqlFile{name: name, body: body})
	}
	return files, nil
}
