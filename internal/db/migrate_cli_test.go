package db

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tpcreco/internal/monitoring"
)

func TestRunMigrateCommand(t *testing.T) {
	monitoring.SetLogger(t.Logf)
	defer monitoring.SetLogger(nil)
	path := filepath.Join(t.TempDir(), "migrate.db")

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"status"}, "current version: 0 (latest 2, dirty: false)"},
		{[]string{"up"}, "current version: 2 (latest 2, dirty: false)"},
		{[]string{"down"}, "current version: 1 (latest 2, dirty: false)"},
		{[]string{"version", "2"}, "current version: 2 (latest 2, dirty: false)"},
		{[]string{"force", "1"}, "current version: 1 (latest 2, dirty: false)"},
		{[]string{"force", "2"}, "current version: 2 (latest 2, dirty: false)"},
	}
	for _, s := range steps {
		var out bytes.Buffer
		require.NoError(t, RunMigrateCommand(s.args, path, &out), "%v", s.args)
		assert.Contains(t, out.String(), s.want, "%v", s.args)
	}

	// The store opens on the migrated schema and keeps results.
	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.StartRun("synthetic", nil)
	assert.NoError(t, err)
}

func TestRunMigrateCommand_Errors(t *testing.T) {
	monitoring.SetLogger(nil)
	path := filepath.Join(t.TempDir(), "migrate.db")

	tests := []struct {
		name string
		args []string
		db   string
		want string
	}{
		{"no action", nil, path, "missing action"},
		{"unknown action", []string{"sideways"}, path, "unknown migrate action"},
		{"no database", []string{"up"}, "", "-db is required"},
		{"version without number", []string{"version"}, path, "usage"},
		{"bad version", []string{"force", "two"}, path, "invalid version number"},
		{"negative version", []string{"version", "-1"}, path, "invalid version number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := RunMigrateCommand(tt.args, tt.db, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"help"}, "", &out))
	assert.Contains(t, out.String(), "force <n>")
}
