package snapshot

import (
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
)

const lockNamespace = "class_snapshot"

// keyedMutex serializes work per key inside one process. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refLock{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func advisoryKey64(pair types.PairKey) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(lockNamespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(pair.String()))
	return int64(h.Sum64())
}

// LockPairs takes transaction-scoped advisory locks for pairs on Postgres, in a fixed order so
// two transactions locking overlapping sets cannot deadlock. SQLite serializes writers itself.
func LockPairs(tx *gorm.DB, pairs ...types.PairKey) error {
	if tx == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	pairs = types.UniquePairs(pairs)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })
	for _, p := range pairs {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", advisoryKey64(p)).Error; err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlstate 23505") || strings.Contains(msg, "unique constraint failed")
}
