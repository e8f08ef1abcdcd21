package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"schedula/internal/domain"
	"schedula/internal/store"
)

// calendarLockKey serializes writers across connections; there is a single
// calendar per database.
const calendarLockKey = "schedula:appointments"

type AppointmentRepo struct {
	db bun.IDB
}

func NewAppointmentRepo(db bun.IDB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

func (r *AppointmentRepo) Load(ctx context.Context) ([]domain.Appointment, error) {
	rows := []domain.Appointment{}
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Save(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	err := r.InTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		appt.ID = 0
		appt.UpdatedAt = nil
		_, err := tx.NewInsert().Model(&appt).Returning("id, created_at").Exec(ctx)
		return translateError(err)
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id int64) (domain.Appointment, error) {
	return getByID(ctx, r.db, id, false)
}

func (r *AppointmentRepo) Update(ctx context.Context, id int64, changes domain.AppointmentChanges) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		appt, err := getByID(ctx, tx, id, true)
		if err != nil {
			return err
		}

		changes.Apply(&appt)
		now := time.Now().UTC()
		appt.UpdatedAt = &now
		columns := append(changes.Columns(), "updated_at")

		_, err = tx.NewUpdate().
			Model(&appt).
			Column(columns...).
			WherePK().
			Exec(ctx)
		if err != nil {
			return translateError(err)
		}
		out = appt
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id int64) error {
	return r.InTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*domain.Appointment)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (r *AppointmentRepo) FilterByDate(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	rows := []domain.Appointment{}
	err := r.db.NewSelect().
		Model(&rows).
		Where("date = ?", date).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// InTransaction runs fn holding the calendar advisory lock until commit.
func (r *AppointmentRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockCalendar(ctx, tx); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func lockCalendar(ctx context.Context, tx bun.Tx) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", calendarLockKey).Exec(ctx)
	return err
}

func getByID(ctx context.Context, db bun.IDB, id int64, forUpdate bool) (domain.Appointment, error) {
	var appt domain.Appointment
	q := db.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Limit(1)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

// translateError maps the overlap exclusion constraint to store.ErrConflict.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23P01" && pgErr.ConstraintName == "appointments_no_overlap" {
			return store.ErrConflict
		}
	}
	return err
}
