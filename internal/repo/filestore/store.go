// Package filestore keeps the booking log as a single JSON array on disk.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/repo"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

const defaultWriteTries = 4

// Store serializes every read-modify-write cycle behind mu. The file is replaced with a
// rename, so readers see either the old or the new array and never a partial one.
type Store struct {
	mu         sync.Mutex
	path       string
	policy     repo.OverlapPolicy
	now        func() time.Time
	writeTries uint
	backoff    func() backoff.BackOff
	readFile   func(path string) ([]byte, error)
	writeFile  func(path string, data []byte) error
	rename     func(oldpath, newpath string) error
}

type loadState int

const (
	loadOK loadState = iota
	// loadCorrupt: the file exists but does not decode.
	loadCorrupt
	// loadUnreadable: the file could not be read at all.
	loadUnreadable
)

type Option func(*Store)

func WithPolicy(p repo.OverlapPolicy) Option { return func(s *Store) { s.policy = p } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithWriteRetry bounds how often a failed flush is retried before ErrWriteRetryExhausted.
func WithWriteRetry(tries uint, b func() backoff.BackOff) Option {
	return func(s *Store) {
		if tries > 0 {
			s.writeTries = tries
		}
		if b != nil {
			s.backoff = b
		}
	}
}

func New(path string, opts ...Option) *Store {
	s := &Store{
		path:       path,
		policy:     repo.PolicyAdvisory,
		now:        time.Now,
		writeTries: defaultWriteTries,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
		readFile:  os.ReadFile,
		writeFile: atomicWrite,
		rename:    os.Rename,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Path() string { return s.path }

func (s *Store) Append(ctx context.Context, b domain.Booking) (domain.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, state := s.load(ctx)
	if err := s.writable(ctx, state); err != nil {
		return domain.Booking{}, false, err
	}
	if i, ok := repo.FindByID(all, b.ID); ok {
		return all[i], false, nil
	}
	if err := s.policy.Admit(all, b); err != nil {
		return domain.Booking{}, false, err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now().UTC()
	}
	if err := s.flush(ctx, append(all, b)); err != nil {
		return domain.Booking{}, false, err
	}
	return b, true, nil
}

func (s *Store) GetAll(ctx context.Context) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, _ := s.load(ctx)
	return all, nil
}

func (s *Store) Cancel(ctx context.Context, id string) (domain.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, state := s.load(ctx)
	if err := s.writable(ctx, state); err != nil {
		return domain.Booking{}, false, err
	}
	i, ok := repo.FindByID(all, id)
	if !ok {
		return domain.Booking{}, false, repo.ErrNotFound
	}
	updated, changed := all[i].Cancel()
	if !changed {
		return updated, false, nil
	}
	all[i] = updated
	if err := s.flush(ctx, all); err != nil {
		return domain.Booking{}, false, err
	}
	return updated, true, nil
}

// load fails open: a missing, unreadable or undecodable file yields an empty log. Mutations
// consult state before writing over the file.
func (s *Store) load(ctx context.Context) ([]domain.Booking, loadState) {
	data, err := s.readFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.DebugContext(ctx, "booking store empty, starting cold", "path", s.path)
		return []domain.Booking{}, loadOK
	}
	if err != nil {
		logger.WarnContext(ctx, "booking store unreadable, serving empty log", "path", s.path, "error", err)
		return []domain.Booking{}, loadUnreadable
	}
	if len(data) == 0 {
		return []domain.Booking{}, loadOK
	}
	var all []domain.Booking
	if err := json.Unmarshal(data, &all); err != nil {
		logger.WarnContext(ctx, "booking store corrupt, serving empty log", "path", s.path, "error", err)
		return []domain.Booking{}, loadCorrupt
	}
	if all == nil {
		all = []domain.Booking{}
	}
	return all, loadOK
}

// writable refuses to mutate a log that could not be read. A corrupt log is moved aside first so
// the next flush never replaces it.
func (s *Store) writable(ctx context.Context, state loadState) error {
	switch state {
	case loadUnreadable:
		return fmt.Errorf("%w: %s", repo.ErrLogUnreadable, s.path)
	case loadCorrupt:
		return s.quarantine(ctx)
	default:
		return nil
	}
}

// quarantine keeps the undecodable file next to the new one instead of overwriting it.
func (s *Store) quarantine(ctx context.Context) error {
	dst := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := s.rename(s.path, dst); err != nil {
		logger.ErrorContext(ctx, "failed to quarantine corrupt booking store", "path", s.path, "error", err)
		return fmt.Errorf("%w: quarantine %s: %w", repo.ErrLogUnreadable, s.path, err)
	}
	logger.WarnContext(ctx, "quarantined corrupt booking store", "path", s.path, "moved_to", dst)
	return nil
}

func (s *Store) flush(ctx context.Context, all []domain.Booking) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bookings: %w", err)
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if werr := s.writeFile(s.path, data); werr != nil {
			logger.WarnContext(ctx, "booking store write failed", "path", s.path, "error", werr)
			return struct{}{}, werr
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(s.backoff()), backoff.WithMaxTries(s.writeTries))
	if err != nil {
		return fmt.Errorf("%w: %w", repo.ErrWriteRetryExhausted, err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

var _ repo.BookingStore = (*Store)(nil)
