package calibration

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const offsetSchema = `
CREATE TABLE IF NOT EXISTS azimuth_offsets (
	module TEXT PRIMARY KEY,
	offset_degrees REAL NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteStore keeps all module offsets in one table.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create calibration dir")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open calibration database")
	}
	if _, err := db.Exec(offsetSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create calibration table")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadOffset(name string) (float64, bool, error) {
	var offset float64
	err := s.db.QueryRow(`SELECT offset_degrees FROM azimuth_offsets WHERE module = ?`, name).Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "query offset for %s", name)
	}
	offset, err = checkOffset(offset)
	if err != nil {
		return 0, false, errors.Wrapf(err, "%s", name)
	}
	return offset, true, nil
}

func (s *SQLiteStore) SaveOffset(name string, offset float64) error {
	_, err := s.db.Exec(`
		INSERT INTO azimuth_offsets (module, offset_degrees) VALUES (?, ?)
		ON CONFLICT(module) DO UPDATE SET
			offset_degrees = excluded.offset_degrees,
			updated_at = CURRENT_TIMESTAMP`, name, offset)
	return errors.Wrapf(err, "save offset for %s", name)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
