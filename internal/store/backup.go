package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ironsheep/carnet-tools/internal/common"
)

const backupTimeLayout = "20060102_150405"

var (
	backupName   = regexp.MustCompile(`^backup_(.+)_(\d{8}_\d{6})\.db$`)
	reasonUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// Backup is one backup file under the backups directory.
type Backup struct {
	Path      string
	Reason    string
	CreatedAt time.Time
}

// Backup writes a consistent copy of the database to
// backups/backup_<reason>_<YYYYMMDD_HHMMSS>.db and returns its path.
func (s *Store) Backup(ctx context.Context, reason string) (string, error) {
	reason = reasonUnsafe.ReplaceAllString(strings.TrimSpace(reason), "_")
	if reason == "" {
		reason = "manual"
	}
	stamp := s.now().Format(backupTimeLayout)

	path := filepath.Join(s.backupsDir, fmt.Sprintf("backup_%s_%s.db", reason, stamp))
	for n := 2; fileExists(path); n++ {
		path = filepath.Join(s.backupsDir, fmt.Sprintf("backup_%s-%d_%s.db", reason, n, stamp))
	}

	// VACUUM INTO folds the WAL into the copy.
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return "", fmt.Errorf("%w: backup %s: %w", common.ErrStorage, reason, err)
	}
	if !fileExists(path) {
		return "", fmt.Errorf("%w: backup %s was not written", common.ErrStorage, path)
	}
	s.log.Info().Str("reason", reason).Str("path", path).Msg("backup created")
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListBackups returns the backups on disk, newest first.
func (s *Store) ListBackups() ([]Backup, error) {
	entries, err := os.ReadDir(s.backupsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list backups: %w", common.ErrStorage, err)
	}

	var out []Backup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := backupName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		ts, err := time.ParseInLocation(backupTimeLayout, m[2], time.Local)
		if err != nil {
			continue
		}
		out = append(out, Backup{
			Path:      filepath.Join(s.backupsDir, e.Name()),
			Reason:    m[1],
			CreatedAt: ts,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Path > out[j].Path
	})
	return out, nil
}

// PruneBackups removes all but the newest retention backups and returns how
// many were removed. Removal failures are logged and skipped.
func (s *Store) PruneBackups() (int, error) {
	backups, err := s.ListBackups()
	if err != nil {
		return 0, err
	}
	if len(backups) <= s.retention {
		return 0, nil
	}
	removed := 0
	for _, b := range backups[s.retention:] {
		if err := os.Remove(b.Path); err != nil {
			s.log.Warn().Err(err).Str("path", b.Path).Msg("could not prune backup")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Int("kept", s.retention).Msg("old backups pruned")
	}
	return removed, nil
}
