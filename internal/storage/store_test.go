package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

// engines returns a fresh instance of every Store implementation.
func engines(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func collect(t *testing.T, s Store, start, end string) []KV {
	t.Helper()
	var out []KV
	for kv, err := range s.Range(context.Background(), []byte(start), []byte(end)) {
		if err != nil {
			t.Fatalf("Range failed: %v", err)
		}
		out = append(out, kv)
	}
	return out
}

func TestStoreGetSet(t *testing.T) {
	for name, s := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.Get(ctx, []byte("missing")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.Set(ctx, []byte("k"), []byte("v1")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := s.Set(ctx, []byte("k"), []byte("v2")); err != nil {
				t.Fatalf("Set overwrite failed: %v", err)
			}
			got, err := s.Get(ctx, []byte("k"))
			if err != nil || string(got) != "v2" {
				t.Fatalf("Get = %q, %v; want v2", got, err)
			}
		})
	}
}

func TestStoreRangeOrderAndBounds(t *testing.T) {
	for name, s := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"b/2", "a/9", "b/1", "b0", "b/10", "c", "b/"} {
				if err := s.Set(ctx, []byte(k), []byte("v:"+k)); err != nil {
					t.Fatalf("Set(%q) failed: %v", k, err)
				}
			}

			got := collect(t, s, "b/", "b0")
			want := []string{"b/", "b/1", "b/10", "b/2"}
			if len(got) != len(want) {
				t.Fatalf("Range returned %d pairs, want %d: %v", len(got), len(want), got)
			}
			for i, kv := range got {
				if string(kv.Key) != want[i] || string(kv.Value) != "v:"+want[i] {
					t.Errorf("pair %d = %q=%q, want %q", i, kv.Key, kv.Value, want[i])
				}
			}

			if empty := collect(t, s, "x", "y"); len(empty) != 0 {
				t.Fatalf("expected empty range, got %v", empty)
			}
		})
	}
}

func TestStoreRangeIsRestartable(t *testing.T) {
	for name, s := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				if err := s.Set(ctx, []byte(fmt.Sprintf("r/%d", i)), []byte{byte(i)}); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
			}
			seq := s.Range(ctx, []byte("r/"), []byte("r0"))

			// stop early, then iterate the same sequence again from the start
			n := 0
			for _, err := range seq {
				if err != nil {
					t.Fatalf("Range failed: %v", err)
				}
				n++
				if n == 2 {
					break
				}
			}
			total := 0
			for _, err := range seq {
				if err != nil {
					t.Fatalf("Range failed: %v", err)
				}
				total++
			}
			if total != 5 {
				t.Fatalf("second iteration saw %d pairs, want 5", total)
			}
		})
	}
}

func TestStoreUpdateAtomic(t *testing.T) {
	for name, s := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			boom := errors.New("boom")

			err := s.Update(ctx, func(tx Tx) error {
				if err := tx.Set([]byte("p/1"), []byte("a")); err != nil {
					return err
				}
				// staged writes are visible inside the transaction
				v, err := tx.Get([]byte("p/1"))
				if err != nil || string(v) != "a" {
					t.Errorf("tx.Get = %q, %v", v, err)
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected callback error, got %v", err)
			}
			if _, err := s.Get(ctx, []byte("p/1")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("rolled back write is visible: %v", err)
			}

			err = s.Update(ctx, func(tx Tx) error {
				if err := tx.Set([]byte("p/1"), []byte("a")); err != nil {
					return err
				}
				return tx.Set([]byte("p/2"), []byte("b"))
			})
			if err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			if got := collect(t, s, "p/", "p0"); len(got) != 2 {
				t.Fatalf("expected both writes, got %v", got)
			}
		})
	}
}

// Readers must see both halves of a pair write or neither.
func TestStorePairVisibility(t *testing.T) {
	for name, s := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const pairs = 50

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < pairs; i++ {
					err := s.Update(ctx, func(tx Tx) error {
						if err := tx.Set([]byte(fmt.Sprintf("x/%03d", i)), []byte("+")); err != nil {
							return err
						}
						return tx.Set([]byte(fmt.Sprintf("y/%03d", i)), []byte("-"))
					})
					if err != nil {
						t.Errorf("Update %d failed: %v", i, err)
						return
					}
				}
			}()

			for i := 0; i < pairs; i++ {
				n := 0
				for kv, err := range s.Range(ctx, []byte("x/"), []byte("y0")) {
					if err != nil {
						t.Fatalf("Range failed: %v", err)
					}
					if kv.Key[0] == 'x' {
						n++
					} else {
						n--
					}
				}
				if n != 0 {
					t.Fatalf("observed half a pair: imbalance %d", n)
				}
			}
			wg.Wait()
		})
	}
}

// Two stores on one file stand in for two processes. Each Update reads a
// counter before writing it back, so a lost update or a failed lock upgrade
// shows up in the final count.
func TestSQLiteStoresShareFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	key := []byte("counter")

	var stores []*SQLiteStore
	for i := 0; i < 2; i++ {
		s, err := NewSQLiteStore(dbPath)
		if err != nil {
			t.Fatalf("NewSQLiteStore %d failed: %v", i, err)
		}
		defer s.Close()
		stores = append(stores, s)
	}

	const perStore = 100
	var wg sync.WaitGroup
	errs := make(chan error, 2*perStore)
	for _, s := range stores {
		wg.Add(1)
		go func(s *SQLiteStore) {
			defer wg.Done()
			for i := 0; i < perStore; i++ {
				err := s.Update(ctx, func(tx Tx) error {
					n := 0
					v, err := tx.Get(key)
					switch {
					case errors.Is(err, ErrNotFound):
					case err != nil:
						return err
					default:
						if n, err = strconv.Atoi(string(v)); err != nil {
							return err
						}
					}
					return tx.Set(key, []byte(strconv.Itoa(n+1)))
				})
				if err != nil {
					errs <- err
				}
			}
		}(s)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if failed == 0 {
			t.Errorf("Update failed: %v", err)
		}
		failed++
	}
	if failed > 0 {
		t.Fatalf("%d of %d updates failed", failed, 2*perStore)
	}

	v, err := stores[0].Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != strconv.Itoa(2*perStore) {
		t.Fatalf("counter = %s, want %d", v, 2*perStore)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Get(context.Background(), []byte("k")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Set(context.Background(), []byte("k"), nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "ledger.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.Set(ctx, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	// reopening runs the migrations again, which must be a no-op
	s, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, []byte("k"))
	if err != nil || string(got) != "v" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
}
