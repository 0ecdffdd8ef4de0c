// Package schema embeds the SQL DDL named in spec §6, applied in filename
// order by cmd/migrate. Adapted from the teacher's migrations/apply_patch.go,
// which applied one named patch file; this generalizes that to "apply every
// embedded file in order" since the ledger core owns its own schema rather
// than one ad hoc patch.
package schema

import (
	"embed"
	"sort"
)

//go:embed *.sql
var files embed.FS

// Migrations returns the embedded DDL files in the order they must run.
func Migrations() ([]string, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		content, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, string(content))
	}
	return out, nil
}
