// Package file stores the appointment collection as a single JSON array on disk.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"schedula/internal/domain"
	"schedula/internal/store"
)

// AppointmentRepo rewrites the whole file on every mutation. Writes land in a
// temp file next to the target and are renamed over it.
type AppointmentRepo struct {
	fs   afero.Fs
	path string
	now  func() time.Time
}

func NewAppointmentRepo(fsys afero.Fs, path string) *AppointmentRepo {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &AppointmentRepo{fs: fsys, path: path, now: time.Now}
}

func (r *AppointmentRepo) Path() string {
	return r.path
}

func (r *AppointmentRepo) Load(ctx context.Context) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Appointment{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []domain.Appointment{}, nil
	}

	var appts []domain.Appointment
	if err := json.Unmarshal(b, &appts); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	if appts == nil {
		appts = []domain.Appointment{}
	}
	return appts, nil
}

func (r *AppointmentRepo) Save(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	appts, err := r.Load(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}

	appt.ID = nextID(appts)
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = r.now().UTC()
	}
	appts = append(appts, appt)

	if err := r.write(appts); err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id int64) (domain.Appointment, error) {
	appts, err := r.Load(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	i := indexOf(appts, id)
	if i < 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return appts[i], nil
}

func (r *AppointmentRepo) Update(ctx context.Context, id int64, changes domain.AppointmentChanges) (domain.Appointment, error) {
	appts, err := r.Load(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	i := indexOf(appts, id)
	if i < 0 {
		return domain.Appointment{}, store.ErrNotFound
	}

	changes.Apply(&appts[i])
	now := r.now().UTC()
	appts[i].UpdatedAt = &now

	if err := r.write(appts); err != nil {
		return domain.Appointment{}, err
	}
	return appts[i], nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id int64) error {
	appts, err := r.Load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(appts, id)
	if i < 0 {
		return store.ErrNotFound
	}
	appts = append(appts[:i], appts[i+1:]...)
	return r.write(appts)
}

func (r *AppointmentRepo) FilterByDate(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	appts, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *AppointmentRepo) write(appts []domain.Appointment) error {
	b, err := json.MarshalIndent(appts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode appointments: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(r.fs, dir, "."+filepath.Base(r.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = r.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = r.fs.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = r.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	// TempFile creates 0600; keep the target's mode across the rename.
	mode := fs.FileMode(0o644)
	if fi, err := r.fs.Stat(r.path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := r.fs.Chmod(tmpName, mode); err != nil {
		_ = r.fs.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := r.fs.Rename(tmpName, r.path); err != nil {
		_ = r.fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}

// nextID is max-seen-id + 1 so deleting a record never hands its id to a
// later one while a higher id still exists.
func nextID(appts []domain.Appointment) int64 {
	var maxID int64
	for _, a := range appts {
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	return maxID + 1
}

func indexOf(appts []domain.Appointment, id int64) int {
	for i, a := range appts {
		if a.ID == id {
			return i
		}
	}
	return -1
}
