package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the index in Redis so the server and the worker share it.
//
//	<prefix>term:<t>  set of document ids
//	<prefix>docs      hash id -> JSON document
//	<prefix>terms     set of every indexed term, used to clear the index
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "finchat:index:"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) termKey(t string) string { return r.prefix + "term:" + t }
func (r *Redis) docsKey() string         { return r.prefix + "docs" }
func (r *Redis) termsKey() string        { return r.prefix + "terms" }

// maxRebuildAttempts bounds retries when concurrent rebuilds keep touching
// the term list.
const maxRebuildAttempts = 32

var errRebuildContended = errors.New("redis index rebuild: too many concurrent rebuilds")

// Rebuild swaps the index contents in one MULTI/EXEC. The term list is
// watched, so a rebuild that raced another one starts over instead of
// leaving the other's term keys behind unlisted.
func (r *Redis) Rebuild(ctx context.Context, docs []Document) error {
	terms := make(map[string][]any)
	encoded := make([]any, 0, len(docs)*2)
	for _, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		id := strconv.FormatUint(d.ID, 10)
		encoded = append(encoded, id, string(b))
		for _, t := range Terms(d.Title + " " + d.Content) {
			terms[t] = append(terms[t], id)
		}
	}

	swap := func(tx *redis.Tx) error {
		old, err := tx.SMembers(ctx, r.termsKey()).Result()
		if err != nil {
			return fmt.Errorf("list indexed terms: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			stale := make([]string, 0, len(old)+2)
			for _, t := range old {
				stale = append(stale, r.termKey(t))
			}
			stale = append(stale, r.docsKey(), r.termsKey())
			pipe.Del(ctx, stale...)

			if len(encoded) > 0 {
				pipe.HSet(ctx, r.docsKey(), encoded...)
			}
			names := make([]any, 0, len(terms))
			for t, ids := range terms {
				pipe.SAdd(ctx, r.termKey(t), ids...)
				names = append(names, t)
			}
			if len(names) > 0 {
				pipe.SAdd(ctx, r.termsKey(), names...)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxRebuildAttempts; i++ {
		err := r.rdb.Watch(ctx, swap, r.termsKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("rebuild redis index: %w", err)
		}
		return nil
	}
	return errRebuildContended
}

func (r *Redis) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	qterms := Terms(query)
	if k <= 0 || len(qterms) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringSliceCmd, len(qterms))
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, t := range qterms {
			cmds[i] = pipe.SMembers(ctx, r.termKey(t))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search redis index: %w", err)
	}

	scores := make(map[uint64]int)
	for _, cmd := range cmds {
		for _, raw := range cmd.Val() {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				continue
			}
			scores[id]++
		}
	}
	ids := rank(scores, k)
	if len(ids) == 0 {
		return nil, nil
	}

	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = strconv.FormatUint(id, 10)
	}
	vals, err := r.rdb.HMGet(ctx, r.docsKey(), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("load indexed documents: %w", err)
	}

	hits := make([]Hit, 0, len(ids))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var d Document
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return nil, fmt.Errorf("decode indexed document %s: %w", fields[i], err)
		}
		hits = append(hits, Hit{Document: d, Score: scores[ids[i]]})
	}
	return hits, nil
}
