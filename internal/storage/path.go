package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildArchivePath returns the object key for one history archive batch,
// partitioned by day so downstream scans can prune by date.
func BuildArchivePath(prefix, batchID string, archivedAt time.Time) (string, error) {
	if err := validatePathComponent(batchID, "batch id"); err != nil {
		return "", err
	}
	ts := archivedAt.UTC()
	key := path.Join(
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("history-%s.parquet", batchID),
	)
	if prefix == "" {
		return key, nil
	}
	if err := validatePathComponent(prefix, "prefix"); err != nil {
		return "", err
	}
	return path.Join(prefix, key), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
