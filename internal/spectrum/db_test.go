package spectrum

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lockin.scan/internal/scan"
	"github.com/banshee-data/lockin.scan/internal/testutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_Migrates(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestDB_SaveAndQuery(t *testing.T) {
	db := setupTestDB(t)
	spectrum, meta := testWindow()

	require.NoError(t, db.Save("/data/scan.lwa", spectrum, meta))
	meta.WindowIndex = 2
	meta.RunID = "other-run"
	require.NoError(t, db.Save("/data/other.lwa", spectrum, meta))

	all, err := db.Windows("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "other-run", all[0].RunID, "newest first")

	runs, err := db.Windows("0f8fad5b-d9cb-469f-a165-70867728950e")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	want := WindowRecord{
		ID:           got.ID,
		RunID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		WindowIndex:  1,
		Destination:  "/data/scan.lwa",
		StartMHz:     100,
		StopMHz:      100.01,
		StepMHz:      0.005,
		Averages:     2,
		Passes:       3,
		Sensitivity:  "1 mV",
		TimeConstant: 0.1,
		Integration:  0.5,
		Settle:       0.1,
		Multiplier:   6,
		Calibration:  []float64{15, 75},
		StartedAt:    testStart,
		FinishedAt:   testStart.Add(90 * time.Second),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("window record mismatch (-want +got):\n%s", diff)
	}

	points, err := db.Points(got.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(spectrum, points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestDB_SaveRejectsMismatchedSpectrum(t *testing.T) {
	db := setupTestDB(t)
	_, meta := testWindow()

	err := db.Save("x.lwa", scan.Spectrum{Frequencies: []float64{1}}, meta)
	assert.Error(t, err)

	all, err := db.Windows("")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDB_AttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	spectrum, meta := testWindow()
	require.NoError(t, db.Save("scan.lwa", spectrum, meta))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	w := testutil.Serve(mux, http.MethodGet, "/debug/backup")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}
