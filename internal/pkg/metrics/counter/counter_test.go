package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeStore keeps hashes in memory and supports exactly the commands the
// flush issues.
type fakeStore struct {
	hashes map[string]map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: map[string]map[string]int64{}}
}

func (f *fakeStore) Do(ctx context.Context, args ...interface{}) *redis.Cmd {
	if len(args) == 3 && args[0] == "RENAME" {
		src, _ := args[1].(string)
		dst, _ := args[2].(string)
		h, ok := f.hashes[src]
		if !ok {
			return redis.NewCmdResult(nil, errors.New("ERR no such key"))
		}
		delete(f.hashes, src)
		f.hashes[dst] = h
		return redis.NewCmdResult("OK", nil)
	}
	return redis.NewCmdResult(nil, errors.New("unsupported command"))
}

func (f *fakeStore) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	out := map[string]string{}
	for field, v := range f.hashes[key] {
		out[field] = strconv.FormatInt(v, 10)
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeStore) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]int64{}
	}
	f.hashes[key][field] += incr
	return redis.NewIntResult(f.hashes[key][field], nil)
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeStore) tmpKeys() []string {
	var keys []string
	for k := range f.hashes {
		if strings.Contains(k, ":tmp:") {
			keys = append(keys, k)
		}
	}
	return keys
}

func newCounterDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE articles (slug TEXT PRIMARY KEY, view_count INTEGER NOT NULL DEFAULT 0)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO articles (slug, view_count) VALUES ('alpha', 10), ('beta', 0)`).Error)
	return db
}

func viewCount(t *testing.T, db *gorm.DB, slug string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Raw(`SELECT view_count FROM articles WHERE slug = ?`, slug).Scan(&n).Error)
	return n
}

func TestFlushHashToTableAppliesIncrements(t *testing.T) {
	db := newCounterDB(t)
	store := newFakeStore()
	store.hashes[articleViewsKey] = map[string]int64{"alpha": 3, "beta": 2}

	require.NoError(t, flushHashToTable(store, db, articleViewsKey, "articles", "view_count"))

	assert.Equal(t, int64(13), viewCount(t, db, "alpha"))
	assert.Equal(t, int64(2), viewCount(t, db, "beta"))
	assert.Empty(t, store.hashes[articleViewsKey])
	assert.Empty(t, store.tmpKeys())
}

func TestFlushHashToTableNothingPending(t *testing.T) {
	db := newCounterDB(t)
	store := newFakeStore()

	require.NoError(t, flushHashToTable(store, db, articleViewsKey, "articles", "view_count"))
	assert.Equal(t, int64(10), viewCount(t, db, "alpha"))
}

func TestFlushHashToTableKeepsCountsOnDBError(t *testing.T) {
	db := newCounterDB(t)
	store := newFakeStore()
	store.hashes[articleViewsKey] = map[string]int64{"alpha": 5}

	err := flushHashToTable(store, db, articleViewsKey, "missing_table", "view_count")
	require.Error(t, err)

	// The drained counts survive under the live key and the temporary key is
	// cleaned up, so the next flush retries them.
	assert.Equal(t, int64(5), store.hashes[articleViewsKey]["alpha"])
	assert.Empty(t, store.tmpKeys())
	assert.Equal(t, int64(10), viewCount(t, db, "alpha"))
}
