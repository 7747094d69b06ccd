package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/lnkbike/crashes/internal/store"
)

const schema = `
CREATE TABLE collision (
    case_no         TEXT PRIMARY KEY,
    filename        TEXT NOT NULL,
    date            TEXT NULL,
    time            TEXT NULL,
    location        TEXT NULL,
    injury_severity INTEGER NULL,
    injury_region   TEXT NULL,
    cyclist_dob     TEXT NULL,
    cyclist_initials TEXT NULL,
    cyclist_gender  TEXT NULL,
    hit_and_run     INTEGER NOT NULL,
    parse_status    TEXT NOT NULL,
    report_text     TEXT NOT NULL
);
CREATE TABLE curation (
    case_no  TEXT PRIMARY KEY REFERENCES collision(case_no),
    category TEXT NOT NULL,
    hit_and_run_status TEXT NULL
);
CREATE TABLE location (
    case_no           TEXT PRIMARY KEY REFERENCES collision(case_no),
    latitude          REAL NOT NULL,
    longitude         REAL NOT NULL,
    source_text       TEXT NOT NULL,
    address           TEXT NOT NULL,
    resolution_method TEXT NOT NULL,
    out_of_bounds     INTEGER NOT NULL
);
CREATE INDEX collision_date ON collision(date);
CREATE INDEX curation_category ON curation(category);`

// WriteSQLite writes the tables to a fresh database at path. The database
// is built next to path and renamed into place, so an interrupted export
// leaves any previous file intact.
func WriteSQLite(ctx context.Context, path string, s *store.Store, log logrus.FieldLogger) error {
	d, err := Build(ctx, s)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := writeDatabase(ctx, tmp, d); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace database: %w", err)
	}

	log.WithFields(logrus.Fields{
		"path":       path,
		"collisions": len(d.Collisions.Rows),
		"curated":    len(d.Curation.Rows),
		"locations":  len(d.Locations.Rows),
	}).Info("Exported database")
	return nil
}

func writeDatabase(ctx context.Context, path string, d *Dataset) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init db: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range d.Tables() {
		if err := insertRows(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, t Table) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(t.Columns, ", "), placeholders)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", t.Name, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert %s %v: %w", t.Name, row[0], err)
		}
	}
	return nil
}
