package config

import (
	"context"
	"log"
	"reflect"
	"time"

	"github.com/itohio/gofreqmeter/pkg/errcode"
)

// DefaultLockTimeout bounds every settings access.
const DefaultLockTimeout = 5 * time.Millisecond

// Store owns the live settings. Every access takes a bounded lock; a timed
// out access returns errcode.ResourceTimeout and leaves settings untouched.
type Store struct {
	lock    chan struct{}
	cfg     *Config
	timeout time.Duration

	unlocked bool // calibration changes allowed
	persist  chan struct{}
}

// NewStore creates a settings store around cfg. A zero timeout selects DefaultLockTimeout.
func NewStore(cfg *Config, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Store{
		lock:    make(chan struct{}, 1),
		cfg:     cfg.Clone(),
		timeout: timeout,
		persist: make(chan struct{}, 1),
	}
}

func (s *Store) acquire(op string) error {
	t := time.NewTimer(s.timeout)
	defer t.Stop()
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-t.C:
		return errcode.New(errcode.ResourceTimeout, op, "settings lock")
	}
}

func (s *Store) release() { <-s.lock }

// Read calls fn with the current settings. fn must not retain c.
func (s *Store) Read(fn func(c *Config)) error {
	if err := s.acquire("settings.read"); err != nil {
		return err
	}
	defer s.release()
	fn(s.cfg)
	return nil
}

// Get returns a deep copy of the current settings.
func (s *Store) Get() (*Config, error) {
	var out *Config
	err := s.Read(func(c *Config) { out = c.Clone() })
	return out, err
}

// Modify applies fn to a copy of the settings and commits it only if fn
// succeeds and the result validates. Either every field of the update is
// applied or none is.
func (s *Store) Modify(fn func(c *Config) error) error {
	if err := s.acquire("settings.modify"); err != nil {
		return err
	}
	defer s.release()

	next := s.cfg.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if !s.unlocked && !reflect.DeepEqual(next.Calibration, s.cfg.Calibration) {
		return errcode.New(errcode.Validation, "settings.modify", "calibration is locked")
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Unlock allows calibration changes if password matches the configured one.
func (s *Store) Unlock(password string) error {
	if err := s.acquire("settings.unlock"); err != nil {
		return err
	}
	defer s.release()
	if password != s.cfg.Security.Password {
		return errcode.New(errcode.Validation, "settings.unlock", "wrong password")
	}
	s.unlocked = true
	return nil
}

// Lock forbids further calibration changes.
func (s *Store) Lock() {
	if s.acquire("settings.lock") != nil {
		return
	}
	s.unlocked = false
	s.release()
}

// RequestPersist asks the persister to save settings. It never blocks and
// coalesces requests issued before the persister runs.
func (s *Store) RequestPersist() {
	select {
	case s.persist <- struct{}{}:
	default:
	}
}

// RunPersister saves settings to filename on every persist request until ctx is done.
func (s *Store) RunPersister(ctx context.Context, filename string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.persist:
			cfg, err := s.Get()
			if err != nil {
				log.Printf("settings: persist postponed: %v", err)
				t := time.NewTimer(s.timeout)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
				s.RequestPersist()
				continue
			}
			if err := cfg.Save(filename); err != nil {
				log.Printf("settings: persist failed: %v", err)
			}
		}
	}
}
