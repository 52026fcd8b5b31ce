package spectrum

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/lockin.scan/internal/monitoring"
	"github.com/banshee-data/lockin.scan/internal/scan"
)

// DB archives every saved window with its points and metadata.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens the sqlite archive at path and applies pending migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// WindowRecord is one archived window.
type WindowRecord struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	WindowIndex  int       `json:"window_index"`
	Destination  string    `json:"destination"`
	StartMHz     float64   `json:"start_mhz"`
	StopMHz      float64   `json:"stop_mhz"`
	StepMHz      float64   `json:"step_mhz"`
	Averages     int       `json:"averages"`
	Passes       int       `json:"passes"`
	Sensitivity  string    `json:"sensitivity"`
	TimeConstant float64   `json:"time_constant_s"`
	Integration  float64   `json:"integration_s"`
	Settle       float64   `json:"settle_s"`
	Multiplier   float64   `json:"multiplier"`
	Calibration  []float64 `json:"calibration"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Save stores the window and its points in one transaction.
func (db *DB) Save(destination string, spectrum scan.Spectrum, meta scan.Metadata) error {
	if len(spectrum.Frequencies) != len(spectrum.Values) {
		return fmt.Errorf("spectrum has %d frequencies but %d values", len(spectrum.Frequencies), len(spectrum.Values))
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO scan_windows (
			run_id, window_index, destination, start_mhz, stop_mhz, step_mhz,
			averages, passes, sensitivity, time_constant_s, integration_s,
			settle_s, multiplier, cal_a, cal_b, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID, meta.WindowIndex, destination,
		meta.Window.Start, meta.Window.Stop, meta.Window.Step,
		meta.Window.Averages, meta.Passes, meta.SensitivityLabel,
		meta.TimeConstant.Seconds(), meta.Integration.Seconds(), meta.Window.Settle.Seconds(),
		meta.Multiplier, meta.Calibration[0], meta.Calibration[1],
		meta.StartedAt.UTC().Format(time.RFC3339Nano), meta.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert window: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO scan_points (window_id, point_index, frequency_mhz, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, f := range spectrum.Frequencies {
		if _, err := stmt.Exec(id, i, f, spectrum.Values[i]); err != nil {
			return fmt.Errorf("insert point %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Windows lists archived windows, newest first. An empty runID lists all.
func (db *DB) Windows(runID string) ([]WindowRecord, error) {
	query := `
		SELECT window_id, run_id, window_index, destination, start_mhz, stop_mhz,
			step_mhz, averages, passes, sensitivity, time_constant_s, integration_s,
			settle_s, multiplier, cal_a, cal_b, started_at, finished_at
		FROM scan_windows`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY window_id DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WindowRecord
	for rows.Next() {
		var (
			r                 WindowRecord
			calA, calB        float64
			started, finished string
		)
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.WindowIndex, &r.Destination, &r.StartMHz, &r.StopMHz,
			&r.StepMHz, &r.Averages, &r.Passes, &r.Sensitivity, &r.TimeConstant, &r.Integration,
			&r.Settle, &r.Multiplier, &calA, &calB, &started, &finished,
		); err != nil {
			return nil, err
		}
		r.Calibration = []float64{calA, calB}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("window %d started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("window %d finished_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Points returns the stored spectrum of one window in axis order.
func (db *DB) Points(windowID int64) (scan.Spectrum, error) {
	rows, err := db.Query(`
		SELECT frequency_mhz, value FROM scan_points
		WHERE window_id = ? ORDER BY point_index`, windowID)
	if err != nil {
		return scan.Spectrum{}, err
	}
	defer rows.Close()

	var s scan.Spectrum
	for rows.Next() {
		var f, v float64
		if err := rows.Scan(&f, &v); err != nil {
			return scan.Spectrum{}, err
		}
		s.Frequencies = append(s.Frequencies, f)
		s.Values = append(s.Values, v)
	}
	return s, rows.Err()
}

// AttachAdminRoutes mounts a tailsql console over the archive and a backup
// download under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Spectrum archive",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the archive now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "lockinscan-backup")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			monitoring.Logf("spectrum: failed to remove backup dir: %v", err)
		}
	}()

	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("spectrum: backup copy failed: %v", err)
	}
}
