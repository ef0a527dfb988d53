package localstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestReadMissingKey(t *testing.T) {
	s := openTestStore(t, Options{})

	data, found, err := s.Read("quickcart-lists")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if found || data != nil {
		t.Errorf("read = (%q, %v), want (nil, false)", data, found)
	}
}

func TestWriteRead(t *testing.T) {
	s := openTestStore(t, Options{})

	if err := s.Write("quickcart-lists", []byte(`[{"id":1}]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, found, err := s.Read("quickcart-lists")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if string(data) != `[{"id":1}]` {
		t.Errorf("data = %q, want %q", data, `[{"id":1}]`)
	}

	if err := s.Write("quickcart-lists", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, _, _ = s.Read("quickcart-lists")
	if string(data) != `[]` {
		t.Errorf("data = %q, want %q", data, `[]`)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	s := openTestStore(t, Options{})
	for i := 0; i < 3; i++ {
		if err := s.Write("k", []byte("v")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	matches, err := filepath.Glob(filepath.Join(s.Dir(), "*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t, Options{})
	s.Write("quickcart-session", []byte("token"))

	if err := s.Delete("quickcart-session"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Read("quickcart-session"); found {
		t.Error("expected key to be gone")
	}
	if err := s.Delete("quickcart-session"); err != nil {
		t.Errorf("delete missing key: %v", err)
	}
}

func TestInvalidKey(t *testing.T) {
	s := openTestStore(t, Options{})
	for _, key := range []string{"", "../escape", "a/b", "sp ace"} {
		if err := s.Write(key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("write %q: err = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	s := openTestStore(t, Options{Passphrase: "correct horse"})
	plaintext := []byte(`[{"id":1,"name":"Produce"}]`)

	if err := s.Write("quickcart-lists", plaintext); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "quickcart-lists"+fileExt))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if bytes.Contains(raw, []byte("Produce")) {
		t.Error("value should be encrypted on disk")
	}

	data, found, err := s.Read("quickcart-lists")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !found || !bytes.Equal(data, plaintext) {
		t.Errorf("read = (%q, %v), want (%q, true)", data, found, plaintext)
	}
}

func TestEncryptedWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, Options{Passphrase: "first"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s1.Write("k", []byte("secret")); err != nil {
		t.Fatalf("write: %v", err)
	}

	s2, err := Open(dir, Options{Passphrase: "second"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := s2.Read("k"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("err = %v, want ErrDecrypt", err)
	}

	s3, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := s3.Read("k"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("err = %v, want ErrDecrypt without passphrase", err)
	}
}

func TestEncryptedStoreReadsPlaintext(t *testing.T) {
	dir := t.TempDir()
	plain, _ := Open(dir, Options{})
	plain.Write("k", []byte("legacy"))

	enc, err := Open(dir, Options{Passphrase: "pw"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, found, err := enc.Read("k")
	if err != nil || !found || string(data) != "legacy" {
		t.Errorf("read = (%q, %v, %v), want (legacy, true, nil)", data, found, err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	s := openTestStore(t, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Write("k", []byte("value")); err != nil {
				t.Errorf("write: %v", err)
			}
		}()
	}
	wg.Wait()

	data, _, err := s.Read("k")
	if err != nil || string(data) != "value" {
		t.Errorf("read = (%q, %v)", data, err)
	}
}

func TestLockInstance(t *testing.T) {
	s := openTestStore(t, Options{})

	release, err := s.LockInstance()
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	other, _ := Open(s.Dir(), Options{})
	if _, err := other.LockInstance(); !errors.Is(err, ErrLocked) {
		t.Errorf("second lock err = %v, want ErrLocked", err)
	}

	release()
	release2, err := other.LockInstance()
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	release2()
}

func TestSetAside(t *testing.T) {
	s := openTestStore(t, Options{})
	if err := s.Write("k", []byte("keep me")); err != nil {
		t.Fatalf("write: %v", err)
	}

	aside, err := s.SetAside("k")
	if err != nil {
		t.Fatalf("set aside: %v", err)
	}
	if _, found, _ := s.Read("k"); found {
		t.Error("key still found after SetAside")
	}
	raw, err := os.ReadFile(aside)
	if err != nil {
		t.Fatalf("read set-aside file: %v", err)
	}
	if string(raw) != "keep me" {
		t.Errorf("set-aside content = %q, want %q", raw, "keep me")
	}

	if _, err := s.SetAside("missing"); err == nil {
		t.Error("SetAside of a missing key should fail")
	}
}
