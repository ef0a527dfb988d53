// Package localstore is QuickCart's durable key/value storage on the local
// machine, the counterpart of a browser's localStorage. Each key is one
// file under the data directory. Writes are atomic (temp file + rename)
// and serialized across processes with a file lock. When a passphrase is
// configured values are encrypted at rest.
package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	fileExt      = ".dat"
	writeLock    = "store.lock"
	instanceLock = "instance.lock"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ErrInvalidKey is returned for keys that cannot be used as file names.
var ErrInvalidKey = errors.New("localstore: invalid key")

// ErrLocked is returned by LockInstance when another process holds the
// data directory.
var ErrLocked = errors.New("localstore: data directory is in use by another instance")

type Options struct {
	// Passphrase enables encryption at rest when non-empty.
	Passphrase string
}

type Store struct {
	dir string
	// mu serializes writers inside this process; lock does the same across
	// processes. Readers need neither because writes land by rename.
	mu    sync.Mutex
	lock  *flock.Flock
	crypt *sealer
}

// Open prepares dir for use, creating it if needed.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, writeLock)),
	}
	if opts.Passphrase != "" {
		crypt, err := newSealer(opts.Passphrase)
		if err != nil {
			return nil, err
		}
		s.crypt = crypt
	}
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key+fileExt), nil
}

// Read returns the value for key. found is false when the key was never
// written or has been deleted.
func (s *Store) Read(key string) (data []byte, found bool, err error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err = os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}

	if isSealed(data) {
		if s.crypt == nil {
			return nil, false, fmt.Errorf("%w: %s is encrypted and no passphrase is configured", ErrDecrypt, key)
		}
		data, err = s.crypt.open(data)
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", key, err)
		}
	}
	return data, true, nil
}

// Write replaces the value for key.
func (s *Store) Write(key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	if s.crypt != nil {
		data, err = s.crypt.seal(data)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	defer s.lock.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	defer s.lock.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// SetAside renames the file for key out of the way, so a value this store
// cannot open is kept rather than overwritten. The key then reads as
// missing. It returns the new path.
func (s *Store) SetAside(key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return "", fmt.Errorf("lock store: %w", err)
	}
	defer s.lock.Unlock()

	aside := filepath.Join(s.dir, key+"."+strconv.FormatInt(time.Now().UnixNano(), 10)+".unreadable")
	if err := os.Rename(p, aside); err != nil {
		return "", fmt.Errorf("set aside %s: %w", key, err)
	}
	return aside, nil
}

// LockInstance takes an exclusive lock on the data directory so only one
// client process works against it. The returned func releases the lock.
func (s *Store) LockInstance() (func(), error) {
	fl := flock.New(filepath.Join(s.dir, instanceLock))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() { _ = fl.Unlock() }, nil
}
