package tools

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInNetwork(t *testing.T) {
	handler := CheckInNetwork(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:5000", http.StatusTeapot},
		{"[::1]:5000", http.StatusTeapot},
		{"192.168.1.20:5000", http.StatusTeapot},
		{"10.1.2.3:5000", http.StatusTeapot},
		{"172.20.0.1:5000", http.StatusTeapot},
		{"8.8.8.8:5000", http.StatusForbidden},
		{"not-an-address", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestParseStartAndEndDate(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	req := httptest.NewRequest(http.MethodGet, "/?start=2024-06-01T08:00&end=2024-06-01T20:30", nil)
	start, end := ParseStartAndEndDate(req, loc, time.Hour)
	assert.Equal(t, "2024-06-01 13:00:00", start)
	assert.Equal(t, "2024-06-02 01:30:00", end)
}

func TestParseStartAndEndDateDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?start=garbage", nil)
	start, end := ParseStartAndEndDate(req, time.UTC, 8*time.Hour)

	s, err := time.Parse(LayoutDB, start)
	require.NoError(t, err)
	e, err := time.Parse(LayoutDB, end)
	require.NoError(t, err)
	assert.InDelta(t, (8 * time.Hour).Seconds(), e.Sub(s).Seconds(), 1)
}

func TestConnectSqliteRunsMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	db, err := ConnectSqlite(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("INSERT INTO threshold_events (event_id, low_threshold, high_threshold) VALUES (?, ?, ?)", "abc", 10, 500)
	require.NoError(t, err)

	// Migrations are re-runnable.
	require.NoError(t, RunMigrations(db))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM threshold_events").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEnsureCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	require.NoError(t, EnsureCertificate(certPath, keyPath))
	assert.True(t, certificateValid(certPath, keyPath, time.Now()))
	assert.False(t, certificateValid(certPath, keyPath, time.Now().Add(2*certificateLifetime)))

	before, err := os.ReadFile(certPath)
	require.NoError(t, err)
	require.NoError(t, EnsureCertificate(certPath, keyPath))
	after, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "valid certificate is kept")
}

func TestSetupLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "colormeter.log")
	closer, err := SetupLogging(LoggingConfig{Level: "debug", File: logPath})
	require.NoError(t, err)
	defer closer.Close()
	_, err = os.Stat(logPath)
	assert.NoError(t, err)

	closer, err = SetupLogging(LoggingConfig{Level: "nonsense"})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}
