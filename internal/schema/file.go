package schema

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// FileProvider reads a DDL dump from local disk.
type FileProvider struct {
	Path string
}

func (p FileProvider) Load(_ context.Context) (Context, error) {
	if strings.TrimSpace(p.Path) == "" {
		return Context{}, fmt.Errorf("schema file path is required")
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Context{}, fmt.Errorf("read schema file %q: %w", p.Path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Context{}, fmt.Errorf("schema file %q is empty", p.Path)
	}
	return NewContext(string(data), "file:"+p.Path, time.Now()), nil
}
