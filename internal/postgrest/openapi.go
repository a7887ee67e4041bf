package postgrest

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Document is a parsed OpenAPI description of the REST surface
type Document struct {
	raw string
}

// ParseDocument wraps a raw OpenAPI JSON document
func ParseDocument(raw []byte) *Document {
	return &Document{raw: string(raw)}
}

// Tables lists exposed tables and views: top-level paths that are not RPC
// endpoints, sorted and unique.
func (d *Document) Tables() []string {
	if d == nil {
		return nil
	}
	names := map[string]struct{}{}
	gjson.Get(d.raw, "paths").ForEach(func(key, _ gjson.Result) bool {
		path := key.String()
		if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "/rpc/") {
			return true
		}
		seg := strings.TrimPrefix(strings.SplitN(path, "?", 2)[0], "/")
		if seg == "" || strings.Contains(seg, "/") {
			return true
		}
		names[seg] = struct{}{}
		return true
	})
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Columns returns column names declared for table in components.schemas,
// trying the naming variants PostgREST emits. Nil when none are declared.
func (d *Document) Columns(table, schema string) []string {
	if d == nil {
		return nil
	}
	schemas := gjson.Get(d.raw, "components.schemas")
	if !schemas.Exists() {
		return nil
	}
	candidates := []string{
		schema + "_" + table,
		table,
		schema + "." + table,
		table + "_insert",
		table + "_update",
	}
	wanted := map[string]struct{}{}
	for _, name := range candidates {
		wanted[name] = struct{}{}
	}
	cols := map[string]struct{}{}
	schemas.ForEach(func(name, def gjson.Result) bool {
		if _, ok := wanted[name.String()]; !ok {
			return true
		}
		def.Get("properties").ForEach(func(key, _ gjson.Result) bool {
			cols[key.String()] = struct{}{}
			return true
		})
		return true
	})
	if len(cols) == 0 {
		return nil
	}
	out := make([]string, 0, len(cols))
	for c := range cols {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
