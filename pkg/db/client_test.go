package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:client_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db, 0)

	ctx := context.Background()
	require.NoError(t, client.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	err := client.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "rollback should leave only the committed row")
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db, time.Second)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicked"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	})

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithTx_StatementTimeoutInterruptsLongStatement(t *testing.T) {
	client := NewFromConn(newTestDB(t), 50*time.Millisecond)
	const longCount = `WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c WHERE x < 1000000000) SELECT count(*) FROM c`

	start := time.Now()
	err := client.WithTx(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		var n int64
		return tx.WithContext(ctx).Raw(longCount).Scan(&n).Error
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 2*time.Second, "statement ran past the timeout")
}

func TestWithTx_PassesBoundedContext(t *testing.T) {
	client := NewFromConn(newTestDB(t), time.Minute)

	require.NoError(t, client.WithTx(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return nil
	}))
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t), 0)
	require.NoError(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)
	err := db.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))

	pgErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "grape_lots_lot_code_key"})
	assert.True(t, IsUniqueViolation(pgErr, "grape_lots_lot_code_key"))
	assert.False(t, IsUniqueViolation(pgErr, "other_key"))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsCheckViolation(t *testing.T) {
	assert.True(t, IsCheckViolation(&pgconn.PgError{Code: "23514"}))
	assert.True(t, IsCheckViolation(errors.New("CHECK constraint failed: chk_grape_lots_gallons_available")))
	assert.False(t, IsCheckViolation(errors.New("connection refused")))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsForeignKeyViolation(errors.New("FOREIGN KEY constraint failed")))
	assert.False(t, IsForeignKeyViolation(nil))
}

func TestViolationHelpersReadLibPQErrors(t *testing.T) {
	err := fmt.Errorf("goose up: %w", &pq.Error{Code: "23505", Constraint: "core_blends_external_id_key"})
	assert.True(t, IsUniqueViolation(err, "core_blends_external_id_key"))
	assert.False(t, IsCheckViolation(err))
	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: "23503"}))
}
