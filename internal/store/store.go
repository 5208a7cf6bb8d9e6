package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"reminder/internal/domain"
)

// FileName is the snapshot file name inside the data directory.
const FileName = "reminders.json"

var refRe = regexp.MustCompile(`^[0-9a-f-]+$`)

// Repository is the reminder collection. Every mutation is one
// load-mutate-save round trip under an exclusive lock.
type Repository interface {
	Path() string
	Load(ctx context.Context) ([]domain.Reminder, error)
	Save(ctx context.Context, rs []domain.Reminder) error

	Add(ctx context.Context, r domain.Reminder) error
	Resolve(ctx context.Context, ref string) (domain.Reminder, error)
	Delete(ctx context.Context, ref string) (bool, error)
	Update(ctx context.Context, ref string, fn func(*domain.Reminder) error) (bool, error)
	UpdateMany(ctx context.Context, ids []uuid.UUID, fn func(*domain.Reminder) bool) (int, error)
	Pause(ctx context.Context, ref string) (bool, error)
	Resume(ctx context.Context, ref string, now time.Time) (bool, error)

	FilterByTag(ctx context.Context, tag string) ([]domain.Reminder, error)
	Tags(ctx context.Context) ([]string, error)
	CleanCompleted(ctx context.Context) (int, error)
	Export(ctx context.Context, path string) (int, error)
	Import(ctx context.Context, path string, overwrite bool) (imported, skipped int, err error)
}

type fileRepo struct {
	path     string
	lockPath string
}

// NewFileRepo stores reminders in the JSON snapshot at path, locking through
// path+".lock".
func NewFileRepo(path string) Repository {
	return &fileRepo{path: path, lockPath: path + ".lock"}
}

func (r *fileRepo) Path() string { return r.path }

// withLock runs fn while holding the sidecar lock and always releases it.
func (r *fileRepo) withLock(ctx context.Context, exclusive bool, fn func() error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return &domain.StorageError{Op: "mkdir", Path: filepath.Dir(r.path), Err: err}
	}
	l, err := acquire(r.lockPath, exclusive)
	if err != nil {
		return &domain.StorageError{Op: "lock", Path: r.lockPath, Err: err}
	}
	defer func() {
		if rerr := l.release(); rerr != nil && err == nil {
			err = &domain.StorageError{Op: "unlock", Path: r.lockPath, Err: rerr}
		}
	}()
	return fn()
}

// mutate is the load-mutate-save round trip. fn reports whether it changed
// anything; nothing is written otherwise.
func (r *fileRepo) mutate(ctx context.Context, fn func([]domain.Reminder) ([]domain.Reminder, bool, error)) error {
	return r.withLock(ctx, true, func() error {
		rs, err := readSnapshot(r.path)
		if err != nil {
			return err
		}
		out, changed, err := fn(rs)
		if err != nil || !changed {
			return err
		}
		return writeSnapshot(r.path, out)
	})
}

func (r *fileRepo) Load(ctx context.Context) ([]domain.Reminder, error) {
	var rs []domain.Reminder
	err := r.withLock(ctx, false, func() (err error) {
		rs, err = readSnapshot(r.path)
		return err
	})
	return rs, err
}

func (r *fileRepo) Save(ctx context.Context, rs []domain.Reminder) error {
	return r.withLock(ctx, true, func() error {
		return writeSnapshot(r.path, rs)
	})
}

func (r *fileRepo) Add(ctx context.Context, rem domain.Reminder) error {
	if err := rem.Validate(); err != nil {
		return err
	}
	return r.mutate(ctx, func(rs []domain.Reminder) ([]domain.Reminder, bool, error) {
		for i := range rs {
			if rs[i].ID == rem.ID {
				return nil, false, &domain.StorageError{Op: "add", Path: r.path, Err: errors.New("duplicate id " + rem.ID.String())}
			}
		}
		return append(rs, rem), true, nil
	})
}

func (r *fileRepo) Resolve(ctx context.Context, ref string) (domain.Reminder, error) {
	rs, err := r.Load(ctx)
	if err != nil {
		return domain.Reminder{}, err
	}
	i, err := resolve(rs, ref)
	if err != nil {
		return domain.Reminder{}, err
	}
	return rs[i], nil
}

func (r *fileRepo) Delete(ctx context.Context, ref string) (bool, error) {
	err := r.mutate(ctx, func(rs []domain.Reminder) ([]domain.Reminder, bool, error) {
		i, err := resolve(rs, ref)
		if err != nil {
			return nil, false, err
		}
		return append(rs[:i], rs[i+1:]...), true, nil
	})
	return found(err)
}

func (r *fileRepo) Update(ctx context.Context, ref string, fn func(*domain.Reminder) error) (bool, error) {
	err := r.mutate(ctx, func(rs []domain.Reminder) ([]domain.Reminder, bool, error) {
		i, err := resolve(rs, ref)
		if err != nil {
			return nil, false, err
		}
		updated := rs[i]
		if err := fn(&updated); err != nil {
			return nil, false, err
		}
		if err := updated.Validate(); err != nil {
			return nil, false, err
		}
		rs[i] = updated
		return rs, true, nil
	})
	return found(err)
}

func (r *fileRepo) UpdateMany(ctx context.Context, ids []uuid.UUID, fn func(*domain.Reminder) bool) (int, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int
	err := r.mutate(ctx, func(rs []domain.Reminder) ([]domain.Reminder, bool, error) {
		for i := range rs {
			if want[rs[i].ID] && fn(&rs[i]) {
				n++
			}
		}
		return rs, n > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *fileRepo) Pause(ctx context.Context, ref string) (bool, error) {
	return r.Update(ctx, ref, func(rem *domain.Reminder) error {
		rem.Pause()
		return nil
	})
}

// Resume clears the pause. A recurring rule that no longer parses still
// resumes, with no next trigger; the *domain.ScheduleError is returned
// alongside ok.
func (r *fileRepo) Resume(ctx context.Context, ref string, now time.Time) (bool, error) {
	var schedErr error
	ok, err := r.Update(ctx, ref, func(rem *domain.Reminder) error {
		err := rem.Resume(now)
		var se *domain.ScheduleError
		if errors.As(err, &se) {
			schedErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return ok, err
	}
	return ok, schedErr
}

func (r *fileRepo) FilterByTag(ctx context.Context, tag string) ([]domain.Reminder, error) {
	rs, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := rs[:0]
	for _, rem := range rs {
		if rem.Tags.Has(tag) {
			out = append(out, rem)
		}
	}
	return out, nil
}

func (r *fileRepo) Tags(ctx context.Context) ([]string, error) {
	rs, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	all := domain.NewTags()
	for _, rem := range rs {
		for t := range rem.Tags {
			all.Add(t)
		}
	}
	return all.Slice(), nil
}

func (r *fileRepo) CleanCompleted(ctx context.Context) (int, error) {
	var removed int
	err := r.mutate(ctx, func(rs []domain.Reminder) ([]domain.Reminder, bool, error) {
		kept := rs[:0]
		for _, rem := range rs {
			if rem.Completed {
				removed++
				continue
			}
			kept = append(kept, rem)
		}
		return kept, removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (r *fileRepo) Export(ctx context.Context, path string) (int, error) {
	rs, err := r.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err := writeSnapshot(path, rs); err != nil {
		return 0, err
	}
	return len(rs), nil
}

func (r *fileRepo) Import(ctx context.Context, path string, overwrite bool) (imported, skipped int, err error) {
	if _, err := os.Stat(path); err != nil {
		return 0, 0, &domain.StorageError{Op: "import", Path: path, Err: err}
	}
	incoming, err := readSnapshot(path)
	if err != nil {
		return 0, 0, err
	}
	for _, rem := range incoming {
		if err := rem.Validate(); err != nil {
			return 0, 0, err
		}
	}

	err = r.mutate(ctx, func(rs []domain.Reminder) ([]domain.Reminder, bool, error) {
		index := make(map[uuid.UUID]int, len(rs))
		for i, rem := range rs {
			index[rem.ID] = i
		}
		for _, rem := range incoming {
			i, exists := index[rem.ID]
			switch {
			case exists && !overwrite:
				skipped++
			case exists:
				rs[i] = rem
				imported++
			default:
				index[rem.ID] = len(rs)
				rs = append(rs, rem)
				imported++
			}
		}
		return rs, imported > 0, nil
	})
	if err != nil {
		return 0, 0, err
	}
	return imported, skipped, nil
}

// resolve finds the single reminder whose id starts with ref.
func resolve(rs []domain.Reminder, ref string) (int, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if !refRe.MatchString(ref) {
		return -1, fmt.Errorf("%w: identifier %q must be a hex id or id prefix", domain.ErrInvalidInput, ref)
	}

	match, n := -1, 0
	for i := range rs {
		if strings.HasPrefix(rs[i].ID.String(), ref) {
			match = i
			n++
		}
	}
	switch n {
	case 0:
		return -1, domain.ErrNotFound
	case 1:
		return match, nil
	default:
		return -1, &domain.AmbiguousIDError{Prefix: ref, Matches: n}
	}
}

// found turns ErrNotFound into a false result.
func found(err error) (bool, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// SortByNextTrigger orders reminders by next trigger, those without one last.
func SortByNextTrigger(rs []domain.Reminder) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].NextTrigger, rs[j].NextTrigger
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}

func readSnapshot(path string) ([]domain.Reminder, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Reminder{}, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "read", Path: path, Err: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []domain.Reminder{}, nil
	}
	var rs []domain.Reminder
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, &domain.StorageError{Op: "decode", Path: path, Err: err}
	}
	if rs == nil {
		rs = []domain.Reminder{}
	}
	return rs, nil
}

func encode(rs []domain.Reminder) ([]byte, error) {
	if rs == nil {
		rs = []domain.Reminder{}
	}
	b, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// writeSnapshot replaces path atomically: temp file, fsync, rename.
func writeSnapshot(path string, rs []domain.Reminder) error {
	b, err := encode(rs)
	if err != nil {
		return &domain.StorageError{Op: "encode", Path: path, Err: err}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &domain.StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &domain.StorageError{Op: "write", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return &domain.StorageError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &domain.StorageError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &domain.StorageError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
