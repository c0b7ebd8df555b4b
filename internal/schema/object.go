package schema

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/askql/askql/internal/storage"
)

// ObjectProvider reads the DDL artifact from the object store.
type ObjectProvider struct {
	Store storage.ObjectStore
	Key   string
}

func (p ObjectProvider) Load(ctx context.Context) (Context, error) {
	if p.Store == nil {
		return Context{}, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(p.Key) == "" {
		return Context{}, fmt.Errorf("schema object key is required")
	}
	reader, err := p.Store.Get(ctx, p.Key)
	if err != nil {
		return Context{}, fmt.Errorf("get schema object %q: %w", p.Key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Context{}, fmt.Errorf("read schema object %q: %w", p.Key, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Context{}, fmt.Errorf("schema object %q is empty", p.Key)
	}
	return NewContext(string(data), "object:"+p.Key, time.Now()), nil
}
