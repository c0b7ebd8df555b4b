package schema

import (
	"context"
	"strings"
	"time"
)

// Context is the DDL text handed to the SQL generator. It is loaded once at
// process startup and never mutated afterwards.
type Context struct {
	ddl      string
	source   string
	loadedAt time.Time
}

func NewContext(ddl, source string, loadedAt time.Time) Context {
	return Context{ddl: strings.TrimSpace(ddl), source: source, loadedAt: loadedAt.UTC()}
}

func (c Context) DDL() string {
	return c.ddl
}

func (c Context) Source() string {
	return c.source
}

func (c Context) LoadedAt() time.Time {
	return c.loadedAt
}

func (c Context) Empty() bool {
	return c.ddl == ""
}

// Provider loads the DDL context. Load is called once during process
// initialization; a failure there is fatal since every downstream stage
// depends on the schema text.
type Provider interface {
	Load(ctx context.Context) (Context, error)
}
