package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"schedula/internal/domain"
	"schedula/internal/store"
)

func TestPostgresIntegration_AppointmentLifecycle(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("SCHEDULA_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("SCHEDULA_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1}, false)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "schedula_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema + ", public").Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}
		// Second run must be a no-op.
		if err := applyMigrations(ctx, tx); err != nil {
			return fmt.Errorf("re-applying migrations: %w", err)
		}

		repo := NewAppointmentRepo(tx)
		date := domain.Date{Year: 2026, Month: time.January, Day: 20}

		a1, err := repo.Save(ctx, domain.Appointment{
			Title:           "t1",
			Date:            date,
			Time:            domain.Clock(10, 0),
			DurationMinutes: 60,
			Status:          domain.StatusScheduled,
		})
		if err != nil {
			return err
		}
		if a1.ID == 0 {
			return fmt.Errorf("expected assigned id")
		}

		got, err := repo.Get(ctx, a1.ID)
		if err != nil {
			return err
		}
		if got.Date != date || got.Time != domain.Clock(10, 0) || got.Title != "t1" {
			return fmt.Errorf("got = %+v", got)
		}

		// Back-to-back booking is allowed by the exclusion constraint.
		if _, err := repo.Save(ctx, domain.Appointment{
			Title:           "t2",
			Date:            date,
			Time:            domain.Clock(11, 0),
			DurationMinutes: 30,
			Status:          domain.StatusScheduled,
		}); err != nil {
			return err
		}

		if err := tx.RunInTx(ctx, nil, func(ctx context.Context, sp bun.Tx) error {
			_, err := NewAppointmentRepo(sp).Save(ctx, domain.Appointment{
				Title:           "overlap",
				Date:            date,
				Time:            domain.Clock(10, 30),
				DurationMinutes: 30,
				Status:          domain.StatusScheduled,
			})
			if !errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("overlap err = %v, want %v", err, store.ErrConflict)
			}
			return err
		}); !errors.Is(err, store.ErrConflict) {
			return err
		}

		cancelled := domain.StatusCancelled
		updated, err := repo.Update(ctx, a1.ID, domain.AppointmentChanges{Status: &cancelled})
		if err != nil {
			return err
		}
		if updated.Status != domain.StatusCancelled || updated.UpdatedAt == nil {
			return fmt.Errorf("updated = %+v", updated)
		}

		onDate, err := repo.FilterByDate(ctx, date)
		if err != nil {
			return err
		}
		if len(onDate) != 2 {
			return fmt.Errorf("len(onDate) = %d, want 2", len(onDate))
		}

		if err := repo.Delete(ctx, a1.ID); err != nil {
			return err
		}
		if err := repo.Delete(ctx, a1.ID); !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("second delete err = %v, want %v", err, store.ErrNotFound)
		}
		if _, err := repo.Get(ctx, a1.ID); !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("get after delete err = %v, want %v", err, store.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
