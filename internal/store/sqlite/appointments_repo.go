package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"schedula/internal/domain"
	"schedula/internal/store"
)

const timestampLayout = time.RFC3339Nano

const selectColumns = `id, title, date, start_time, duration_minutes, client_name, description, status, created_at, updated_at`

// AppointmentRepo keeps appointments in a single SQLite file. AUTOINCREMENT
// keeps ids monotonic across deletes.
type AppointmentRepo struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*AppointmentRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer; the scheduler is the only actor.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &AppointmentRepo{db: db, now: time.Now}
	if err := repo.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return repo, nil
}

func (r *AppointmentRepo) migrate() error {
	if _, err := r.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
			client_name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(date)`,
	}
	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}
	return nil
}

func (r *AppointmentRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *AppointmentRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AppointmentRepo) Load(ctx context.Context) ([]domain.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM appointments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}
	return scanAll(rows)
}

func (r *AppointmentRepo) Save(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = r.now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO appointments (title, date, start_time, duration_minutes, client_name, description, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.Title, appt.Date, appt.Time, appt.DurationMinutes, appt.ClientName, appt.Description,
		string(appt.Status), appt.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("failed to save appointment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("failed to read appointment id: %w", err)
	}
	appt.ID = id
	appt.UpdatedAt = nil
	return appt, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id int64) (domain.Appointment, error) {
	return getByID(ctx, r.db, id)
}

func (r *AppointmentRepo) Update(ctx context.Context, id int64, changes domain.AppointmentChanges) (domain.Appointment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	appt, err := getByID(ctx, tx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	changes.Apply(&appt)
	now := r.now().UTC()
	appt.UpdatedAt = &now

	_, err = tx.ExecContext(ctx,
		`UPDATE appointments
		 SET title = ?, date = ?, start_time = ?, duration_minutes = ?, client_name = ?, description = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		appt.Title, appt.Date, appt.Time, appt.DurationMinutes, appt.ClientName, appt.Description,
		string(appt.Status), now.Format(timestampLayout), id,
	)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("failed to update appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Appointment{}, fmt.Errorf("failed to commit update: %w", err)
	}
	return appt, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepo) FilterByDate(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM appointments WHERE date = ? ORDER BY id`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to filter appointments: %w", err)
	}
	return scanAll(rows)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getByID(ctx context.Context, q rowQuerier, id int64) (domain.Appointment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = ?`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(s scanner) (domain.Appointment, error) {
	var (
		a         domain.Appointment
		status    string
		createdAt string
		updatedAt sql.NullString
	)
	err := s.Scan(&a.ID, &a.Title, &a.Date, &a.Time, &a.DurationMinutes, &a.ClientName, &a.Description,
		&status, &createdAt, &updatedAt)
	if err != nil {
		return domain.Appointment{}, err
	}
	a.Status = domain.Status(status)

	a.CreatedAt, err = time.Parse(timestampLayout, createdAt)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if updatedAt.Valid {
		t, err := time.Parse(timestampLayout, updatedAt.String)
		if err != nil {
			return domain.Appointment{}, fmt.Errorf("invalid updated_at %q: %w", updatedAt.String, err)
		}
		a.UpdatedAt = &t
	}
	return a, nil
}

func scanAll(rows *sql.Rows) ([]domain.Appointment, error) {
	defer rows.Close()

	out := []domain.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	return out, nil
}
