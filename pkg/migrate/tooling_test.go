package migrate_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/jasoncmcclain/mcpmp-api/pkg/migrate"
)

const goodBody = "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n\n-- +goose Down\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n"

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Embedded()))
	require.NoError(t, migrate.Validate(migrate.Source("migrations")))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301090000_ok.sql":         {Data: []byte(goodBody)},
		"20260301090000_duplicate.sql":  {Data: []byte(goodBody)},
		"add_lots.sql":                  {Data: []byte(goodBody)},
		"20260301090100_no_down.sql":    {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"20260301090200_unbalanced.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")},
		"README.md":                     {Data: []byte("ignored")},
	}

	err := migrate.Validate(fsys)
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 4)
	assert.ErrorContains(t, err, "add_lots.sql: expected YYYYMMDDHHMMSS_name.sql")
	assert.ErrorContains(t, err, "already used by")
	assert.ErrorContains(t, err, "20260301090100_no_down.sql: missing \"-- +goose Down\"")
	assert.ErrorContains(t, err, "1 StatementBegin vs 0 StatementEnd")
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Add Lot Notes!":            "add_lot_notes",
		"  reservations--ttl  ":     "reservations_ttl",
		"___":                       "",
		"Index grape_lots(vintage)": "index_grape_lots_vintage",
	}
	for in, want := range cases {
		assert.Equal(t, want, migrate.Slug(in), in)
	}
}

func TestCreateWritesValidMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	path, err := migrate.Create(dir, "Add Lot Notes!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260302103000_add_lot_notes.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- revert add_lot_notes")
	require.NoError(t, migrate.Validate(os.DirFS(dir)))

	_, err = migrate.Create(dir, "add lot notes", now)
	assert.ErrorContains(t, err, "already exists")

	_, err = migrate.Create(dir, "!!!", now)
	assert.ErrorContains(t, err, "no usable characters")
}
