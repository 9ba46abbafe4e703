package docstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a single Redis instance. Conditional writes and
// multi-document transactions run as Lua scripts so the version check and the
// write are atomic; the secondary index is a sorted set per partition scored
// by IndexSort. Expiry rides on the native key TTL, with stale index members
// skipped on read.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client with the given key prefix (for example "authcore").
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "docstore"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) docKey(collection, key string) string {
	return fmt.Sprintf("%s:d:%s:%s", r.prefix, collection, key)
}

func (r *Redis) indexKey(collection, partition string) string {
	return fmt.Sprintf("%s:i:%s:%s", r.prefix, collection, partition)
}

// Each document occupies one hash with fields:
//
//	v   version number
//	b   payload JSON
//	pk  index partition ("" when unindexed)
//	sk  index sort value
//	exp expiry hint in epoch seconds (0 = none)
//
// The script checks every version condition before performing any write, so a
// failed condition leaves the batch untouched.
const putScript = `
local n = tonumber(ARGV[1])
for i = 1, n do
  local base = 2 + (i - 1) * 6
  local expected = tonumber(ARGV[base])
  local v = redis.call("HGET", KEYS[i], "v")
  if expected == 0 then
    if v then return 0 end
  else
    if not v or tonumber(v) ~= expected then return 0 end
  end
end
for i = 1, n do
  local base = 2 + (i - 1) * 6
  local expected = tonumber(ARGV[base])
  local body = ARGV[base + 1]
  local pk = ARGV[base + 2]
  -- Sort and expiry values stay strings end to end; 64-bit epoch values do
  -- not survive a round trip through Lua numbers.
  local sk = ARGV[base + 3]
  local exp = ARGV[base + 4]
  local member = ARGV[base + 5]
  redis.call("HSET", KEYS[i], "v", expected + 1, "b", body, "pk", pk, "sk", sk, "exp", exp)
  if tonumber(exp) > 0 then
    redis.call("EXPIREAT", KEYS[i], exp)
  end
  if pk ~= "" then
    redis.call("ZADD", KEYS[n + i], sk, member)
  end
end
return 1
`

var putLua = redis.NewScript(putScript)

// Get implements Store.
func (r *Redis) Get(ctx context.Context, collection, key string) (Document, bool, error) {
	vals, err := r.client.HMGet(ctx, r.docKey(collection, key), "v", "b", "pk", "sk", "exp").Result()
	if err != nil {
		return Document{}, false, err
	}
	if vals[0] == nil {
		return Document{}, false, nil
	}
	doc, err := r.hydrate(collection, key, vals)
	if err != nil {
		return Document{}, false, err
	}
	return doc, true, nil
}

// Put implements Store.
func (r *Redis) Put(ctx context.Context, doc Document) (Document, error) {
	if err := r.run(ctx, doc); err != nil {
		return Document{}, err
	}
	stored := doc
	stored.Version = doc.Version + 1
	return stored, nil
}

// TransactPut implements Store.
func (r *Redis) TransactPut(ctx context.Context, docs ...Document) error {
	return r.run(ctx, docs...)
}

func (r *Redis) run(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(docs)*2)
	args := make([]interface{}, 0, 1+len(docs)*6)
	args = append(args, len(docs))
	for _, doc := range docs {
		keys = append(keys, r.docKey(doc.Collection, doc.Key))
		args = append(args, doc.Version, string(doc.Payload), doc.IndexPartition, doc.IndexSort, doc.ExpiresAt, doc.Key)
	}
	for _, doc := range docs {
		// Index keys trail the document keys so the script can address
		// KEYS[n+i]; unindexed documents still occupy a slot.
		keys = append(keys, r.indexKey(doc.Collection, doc.IndexPartition))
	}

	res, err := putLua.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrVersionConflict
	}
	return nil
}

// QueryIndex implements Store.
func (r *Redis) QueryIndex(ctx context.Context, collection, indexPartition string, descending bool, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = -1
	}

	var members []string
	var err error
	stop := int64(limit)
	if stop > 0 {
		stop--
	}
	if descending {
		members, err = r.client.ZRevRange(ctx, r.indexKey(collection, indexPartition), 0, stop).Result()
	} else {
		members, err = r.client.ZRange(ctx, r.indexKey(collection, indexPartition), 0, stop).Result()
	}
	if err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(members))
	for _, member := range members {
		vals, err := r.client.HMGet(ctx, r.docKey(collection, member), "v", "b", "pk", "sk", "exp").Result()
		if err != nil {
			return nil, err
		}
		if vals[0] == nil {
			// Expired document left behind in the index.
			continue
		}
		doc, err := r.hydrate(collection, member, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *Redis) hydrate(collection, key string, vals []interface{}) (Document, error) {
	doc := Document{Collection: collection, Key: key}

	version, err := strconv.ParseInt(asString(vals[0]), 10, 64)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: corrupt version for %s/%s: %w", collection, key, err)
	}
	doc.Version = version
	doc.Payload = []byte(asString(vals[1]))
	doc.IndexPartition = asString(vals[2])
	if s := asString(vals[3]); s != "" {
		if doc.IndexSort, err = strconv.ParseInt(s, 10, 64); err != nil {
			return Document{}, fmt.Errorf("docstore: corrupt index sort for %s/%s: %w", collection, key, err)
		}
	}
	if s := asString(vals[4]); s != "" {
		if doc.ExpiresAt, err = strconv.ParseInt(s, 10, 64); err != nil {
			return Document{}, fmt.Errorf("docstore: corrupt expiry for %s/%s: %w", collection, key, err)
		}
	}
	return doc, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
