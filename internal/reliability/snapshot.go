package reliability

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/fundlens/fundlens/internal/database"
	"github.com/rs/zerolog"
)

// SnapshotService produces consistent on-disk copies of the live databases.
type SnapshotService struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewSnapshotService creates a snapshot service over the given databases,
// keyed by logical name (ledger, profile).
func NewSnapshotService(databases map[string]*database.DB, log zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		databases: databases,
		log:       log.With().Str("service", "snapshot").Logger(),
	}
}

// DatabaseNames returns the logical names of the databases covered by
// snapshots, in no particular order.
func (s *SnapshotService) DatabaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	return names
}

// Snapshot writes a consistent copy of the named database to destPath
// using SQLite's VACUUM INTO, then verifies its integrity.
func (s *SnapshotService) Snapshot(dbName, destPath string) error {
	db, ok := s.databases[dbName]
	if !ok {
		return fmt.Errorf("database %s not found", dbName)
	}

	s.log.Debug().
		Str("database", dbName).
		Str("dest", destPath).
		Msg("Snapshotting database")

	// VACUUM INTO produces a compacted copy with no WAL sidecar
	_, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath))
	if err != nil {
		return fmt.Errorf("VACUUM INTO failed for %s: %w", dbName, err)
	}

	if err := s.verify(destPath); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("snapshot verification failed for %s: %w", dbName, err)
	}

	return nil
}

// verify opens the snapshot and runs an integrity check.
func (s *SnapshotService) verify(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}
