package maintenance

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askql/askql/internal/history"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/storage"
)

type Config struct {
	ArchiveInterval time.Duration
	RetentionAge    time.Duration
	BatchLimit      int
	ArchivePrefix   string
}

// Service moves expired history entries out of PostgreSQL into parquet
// archives on the object store. Entries are deleted only after their batch
// was uploaded, so a failed upload leaves the rows in place for the next run.
type Service struct {
	History     history.Repository
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type ArchiveSummary struct {
	EntriesScanned  int      `json:"entries_scanned"`
	EntriesArchived int      `json:"entries_archived"`
	EntriesDeleted  int      `json:"entries_deleted"`
	Batches         int      `json:"batches"`
	ObjectPaths     []string `json:"object_paths,omitempty"`
	Failures        int      `json:"failures"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunArchiveOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "history archive cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "history archive cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunArchiveOnce archives every history entry older than the retention age,
// batch by batch, and reports what it moved.
func (s *Service) RunArchiveOnce(ctx context.Context) (ArchiveSummary, error) {
	s.ensureDefaults()
	if s.History == nil {
		return ArchiveSummary{}, fmt.Errorf("history repository is required")
	}
	if s.ObjectStore == nil {
		return ArchiveSummary{}, fmt.Errorf("object store is required")
	}

	cutoff := s.Clock().Add(-s.Config.RetentionAge)
	summary := ArchiveSummary{}
	failures := make([]string, 0)

	for {
		entries, err := s.History.ListOlderThan(ctx, cutoff, s.Config.BatchLimit)
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("list expired entries: %v", err))
			break
		}
		if len(entries) == 0 {
			break
		}
		summary.EntriesScanned += len(entries)

		objectPath, err := s.archiveBatch(ctx, entries)
		if err != nil {
			summary.Failures++
			failures = append(failures, err.Error())
			break
		}
		summary.Batches++
		summary.ObjectPaths = append(summary.ObjectPaths, objectPath)
		summary.EntriesArchived += len(entries)

		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		deleted, err := s.History.DeleteByIDs(ctx, ids)
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("delete archived entries: %v", err))
			break
		}
		summary.EntriesDeleted += int(deleted)
		// A delete that removes nothing would make the next list return the
		// same batch again and re-upload it without end.
		if deleted == 0 {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("archived batch of %d entries but deleted none", len(entries)))
			break
		}

		if len(entries) < s.Config.BatchLimit {
			break
		}
	}

	if summary.EntriesArchived > 0 {
		observability.ObserveHistoryArchived(summary.EntriesArchived)
	}
	if len(failures) > 0 {
		archiveRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("archive encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	archiveRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunPruneOnce deletes expired entries without archiving them. Used when the
// deployment has no object store configured.
func (s *Service) RunPruneOnce(ctx context.Context) (int64, error) {
	s.ensureDefaults()
	if s.History == nil {
		return 0, fmt.Errorf("history repository is required")
	}

	cutoff := s.Clock().Add(-s.Config.RetentionAge)
	deleted, err := s.History.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		prunedEntriesTotal.Add(float64(deleted))
	}
	return deleted, nil
}

func (s *Service) archiveBatch(ctx context.Context, entries []history.Entry) (string, error) {
	encoded, err := history.EncodeEntriesToParquet(entries)
	if err != nil {
		return "", fmt.Errorf("encode archive batch: %w", err)
	}

	objectPath, err := storage.BuildArchivePath(s.Config.ArchivePrefix, uuid.NewString(), s.Clock())
	if err != nil {
		return "", fmt.Errorf("build archive path: %w", err)
	}

	if _, err := s.ObjectStore.Put(ctx, objectPath, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return "", fmt.Errorf("upload archive %s: %w", objectPath, err)
	}
	return objectPath, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.ArchiveInterval <= 0 {
		s.Config.ArchiveInterval = 24 * time.Hour
	}
	if s.Config.RetentionAge <= 0 {
		s.Config.RetentionAge = 30 * 24 * time.Hour
	}
	if s.Config.BatchLimit <= 0 {
		s.Config.BatchLimit = 1000
	}
}
