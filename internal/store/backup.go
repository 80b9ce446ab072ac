package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Backup snapshots are real tables in the store, named from the UTC
// timestamp of the repair run that created them. They are never expired
// automatically - PruneBackups is the explicit cleanup call.

const backupPrefix = "wallets_backup_"

// backupNamePattern constrains snapshot table names to timestamps we
// generated ourselves. Names are interpolated into DDL (SQLite cannot
// parameterize identifiers), so anything not matching is rejected before
// it reaches a statement.
var backupNamePattern = regexp.MustCompile(`^wallets_backup_[0-9]{8}T[0-9]{6}(_[0-9]+)?$`)

// backupTableName derives the snapshot table name for a repair run
// starting at t. Deterministic: the same timestamp yields the same name.
func backupTableName(t time.Time) string {
	return backupPrefix + t.UTC().Format("20060102T150405")
}

// validBackupName reports whether name is a snapshot table this store
// could have created.
func validBackupName(name string) bool {
	return backupNamePattern.MatchString(name)
}

// CreateBackup snapshots the full wallet collection into a new
// timestamp-named table and returns the table name. If a snapshot already
// exists for the same second, a numeric suffix disambiguates.
func (s *Store) CreateBackup(ctx context.Context) (string, error) {
	return s.CreateBackupAt(ctx, time.Now())
}

// CreateBackupAt snapshots the wallet collection using an explicit
// timestamp. Exposed for deterministic tests.
func (s *Store) CreateBackupAt(ctx context.Context, t time.Time) (string, error) {
	base := backupTableName(t)
	name := base
	for suffix := 2; ; suffix++ {
		exists, err := s.tableExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		name = fmt.Sprintf("%s_%d", base, suffix)
	}

	if !validBackupName(name) {
		return "", fmt.Errorf("create backup: invalid snapshot name %q", name)
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE %q AS SELECT %s FROM wallets`, name, walletColumns,
	))
	if err != nil {
		return "", fmt.Errorf("create backup %s: %w", name, err)
	}

	return name, nil
}

// RestoreBackup replaces the wallet collection with the contents of the
// named snapshot, atomically. Used for best-effort recovery when a repair
// transaction fails.
func (s *Store) RestoreBackup(ctx context.Context, name string) error {
	if !validBackupName(name) {
		return fmt.Errorf("restore backup: invalid snapshot name %q", name)
	}

	exists, err := s.tableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("restore backup: snapshot %s not found", name)
	}

	return s.Transact(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM wallets`); err != nil {
			return fmt.Errorf("restore backup: clear wallets: %w", err)
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO wallets (%s) SELECT %s FROM %q`,
			walletColumns, walletColumns, name,
		))
		if err != nil {
			return fmt.Errorf("restore backup: reinsert from %s: %w", name, err)
		}
		return nil
	})
}

// ListBackups returns all snapshot table names, oldest first.
// Timestamp-named snapshots sort chronologically by name.
func (s *Store) ListBackups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name LIKE ?
	`, backupPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list backups: scan: %w", err)
		}
		if validBackupName(name) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// DropBackup removes a single snapshot table.
func (s *Store) DropBackup(ctx context.Context, name string) error {
	if !validBackupName(name) {
		return fmt.Errorf("drop backup: invalid snapshot name %q", name)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
		return fmt.Errorf("drop backup %s: %w", name, err)
	}
	return nil
}

// PruneBackups drops all but the keep most recent snapshots and returns
// the names that were dropped. keep < 0 is treated as 0.
func (s *Store) PruneBackups(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}

	names, err := s.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) <= keep {
		return []string{}, nil
	}

	toDrop := names[:len(names)-keep]
	dropped := make([]string, 0, len(toDrop))
	for _, name := range toDrop {
		if err := s.DropBackup(ctx, name); err != nil {
			return dropped, err
		}
		dropped = append(dropped, name)
	}
	return dropped, nil
}

// tableExists checks sqlite_master for a table with the given name.
func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?
	`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return count > 0, nil
}
