package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yvza/sudo.party-sub000/internal/pkg/cache"
	"github.com/yvza/sudo.party-sub000/internal/pkg/database"
)

const articleViewsKey = "article:counters:views"

// counterStore is the slice of the Redis client the flush needs. *redis.Client
// satisfies it; tests substitute an in-memory fake.
type counterStore interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AddArticleView increments the pending view counter for an article in Redis.
// Access checks call this on every grant; the hot path never writes MySQL.
func AddArticleView(slug string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, articleViewsKey, slug, 1).Err()
}

// FlushAll drains the pending counters to the database.
func FlushAll() error {
	return flushHashToTable(cache.GetClient(), database.GetDB(), articleViewsKey, "articles", "view_count")
}

// flushHashToTable drains a Redis hash atomically and applies batched
// increments to the target table keyed by slug. Uses RENAME to a temporary
// key so in-flight increments are never lost; the temporary key is only
// deleted once the UPDATE succeeded, otherwise its counts merge back into the
// live hash for the next flush.
func flushHashToTable(rdb counterStore, db *gorm.DB, redisKey, table, column string) error {
	ctx := context.Background()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	type pair struct {
		slug string
		inc  int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{slug: k, inc: inc})
	}
	if len(pairs) == 0 {
		return rdb.Del(ctx, tmpKey).Err()
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].slug < pairs[j].slug })

	// UPDATE articles SET view_count = view_count + CASE slug WHEN ? THEN ? ... END WHERE slug IN (...)
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE slug ")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.slug, p.inc)
	}
	builder.WriteString(" END WHERE slug IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.slug)
	}
	builder.WriteString(")")

	if err := db.Exec(builder.String(), args...).Error; err != nil {
		// Put the drained counts back; the next flush retries them.
		for _, p := range pairs {
			rdb.HIncrBy(ctx, redisKey, p.slug, p.inc)
		}
		rdb.Del(ctx, tmpKey)
		return err
	}
	return rdb.Del(ctx, tmpKey).Err()
}
