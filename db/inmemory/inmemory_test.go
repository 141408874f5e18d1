package inmemory

import (
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/blindvote/db"
)

func newTestDB(t *testing.T) *Database {
	database, err := New(db.Options{})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestWriteTx(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	tx := database.WriteTx()
	c.Assert(tx.Set([]byte("a"), []byte("1")), qt.IsNil)

	// pending writes are visible inside the tx only
	v, err := tx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("1"))
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(tx.Commit(), qt.IsNil)
	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("1"))

	c.Assert(tx.Commit(), qt.ErrorIs, db.ErrTxDone)
	c.Assert(tx.Set([]byte("b"), nil), qt.ErrorIs, db.ErrTxDone)

	tx = database.WriteTx()
	c.Assert(tx.Delete([]byte("a")), qt.IsNil)
	_, err = tx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(tx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

func TestDiscard(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	tx := database.WriteTx()
	c.Assert(tx.Set([]byte("a"), []byte("1")), qt.IsNil)
	tx.Discard()
	c.Assert(tx.Commit(), qt.ErrorIs, db.ErrTxDone)
	_, err := database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

func TestIterate(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	tx := database.WriteTx()
	for _, k := range []string{"p/3", "p/1", "q/1", "p/2"} {
		c.Assert(tx.Set([]byte(k), []byte(k)), qt.IsNil)
	}
	c.Assert(tx.Commit(), qt.IsNil)

	var keys []string
	c.Assert(database.Iterate([]byte("p/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"p/1", "p/2", "p/3"})
	c.Assert(database.Len([]byte("p/")), qt.Equals, 3)

	// early stop
	keys = nil
	c.Assert(database.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return len(keys) < 2
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 2)

	// the tx view merges pending writes and deletions
	tx = database.WriteTx()
	c.Assert(tx.Delete([]byte("p/2")), qt.IsNil)
	c.Assert(tx.Set([]byte("p/4"), []byte("p/4")), qt.IsNil)
	keys = nil
	c.Assert(tx.Iterate([]byte("p/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"p/1", "p/3", "p/4"})
	tx.Discard()
}

func TestConflict(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	tx1 := database.WriteTx()
	tx2 := database.WriteTx()
	_, err := tx1.Get([]byte("k"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = tx2.Get([]byte("k"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(tx1.Set([]byte("k"), []byte("1")), qt.IsNil)
	c.Assert(tx2.Set([]byte("k"), []byte("2")), qt.IsNil)
	c.Assert(tx1.Commit(), qt.IsNil)
	c.Assert(tx2.Commit(), qt.ErrorIs, db.ErrConflict)

	v, err := database.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("1"))

	// blind writes on distinct keys do not conflict
	tx1 = database.WriteTx()
	tx2 = database.WriteTx()
	c.Assert(tx1.Set([]byte("x"), []byte("1")), qt.IsNil)
	c.Assert(tx2.Set([]byte("y"), []byte("2")), qt.IsNil)
	c.Assert(tx1.Commit(), qt.IsNil)
	c.Assert(tx2.Commit(), qt.IsNil)
}

func TestConcurrentCheckAndSet(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := database.WriteTx()
			defer tx.Discard()
			if _, err := tx.Get([]byte("once")); err == nil {
				return
			}
			if err := tx.Set([]byte("once"), []byte(fmt.Sprint(i))); err != nil {
				return
			}
			if tx.Commit() == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	c.Assert(wins, qt.Equals, 1)
}
