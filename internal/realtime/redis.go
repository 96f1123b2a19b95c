package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
)

const (
	redisDocPrefix   = "rt:doc:"
	redisIndexPrefix = "rt:idx:"
	redisChannel     = "rt:changes"
	redisNodeSeq     = "rt:node-seq"
)

// RedisStore keeps the tree in redis so several server instances share one state.
// Every node at depth two (collection/key) is a JSON document; a set per collection
// indexes its keys. Writes are optimistic WATCH/MULTI transactions per document and
// every committed change is published so all instances notify their listeners.
type RedisStore struct {
	client     *redis.Client
	pubsub     *redis.PubSub
	clock      *serverClock
	keys       *KeyGenerator
	maxRetries int
	listeners  *listenerSet
}

// NewRedisClient builds a client from a host:port address or a redis:// URL
func NewRedisClient(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

// AllocateNodeID hands every caller sharing the redis instance a different key
// generator node id, wrapping after 1024 instances
func AllocateNodeID(ctx context.Context, client *redis.Client) (int64, error) {
	n, err := client.Incr(ctx, redisNodeSeq).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", redisNodeSeq, err)
	}
	return (n - 1) % 1024, nil
}

// NewRedisStore wraps client and starts the change feed. The store owns the client.
func NewRedisStore(ctx context.Context, client *redis.Client, opts ...Option) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	o := buildOptions(opts)
	s := &RedisStore{
		client:     client,
		clock:      &serverClock{now: o.clock},
		keys:       o.keys,
		maxRetries: o.maxRetries,
		listeners:  newListenerSet(),
	}

	s.pubsub = client.Subscribe(ctx, redisChannel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	go s.consumeChanges()

	return s, nil
}

func (s *RedisStore) consumeChanges() {
	for msg := range s.pubsub.Channel() {
		s.listeners.notify(msg.Payload)
	}
}

func docKey(collection, key string) string {
	return redisDocPrefix + collection + "/" + key
}

func indexKey(collection string) string {
	return redisIndexPrefix + collection
}

// Get reads the value at path
func (s *RedisStore) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := validatePath(path)
	if err != nil {
		return Snapshot{}, err
	}

	switch len(segs) {
	case 0:
		return Snapshot{}, fmt.Errorf("get %q: %w", path, ErrUnsupportedPath)
	case 1:
		value, err := s.readCollection(ctx, segs[0])
		if err != nil {
			return Snapshot{}, err
		}
		return NewSnapshot(path, value), nil
	default:
		doc, err := s.readDoc(ctx, s.client, segs[0], segs[1])
		if err != nil {
			return Snapshot{}, err
		}
		return NewSnapshot(path, getAt(doc, segs[2:])), nil
	}
}

// docGetter is satisfied by both *redis.Client and *redis.Tx
type docGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) readDoc(ctx context.Context, c docGetter, collection, key string) (any, error) {
	raw, err := c.Get(ctx, docKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", collection, key, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

func (s *RedisStore) readCollection(ctx context.Context, collection string) (any, error) {
	keys, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", collection, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = docKey(collection, k)
	}
	raws, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", collection, err)
	}

	out := make(map[string]any, len(keys))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var doc any
		if err := json.Unmarshal([]byte(str), &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, keys[i], err)
		}
		if doc != nil {
			out[keys[i]] = doc
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// mutateDoc applies fn to one document inside a WATCH/MULTI transaction, retrying
// when another writer changed the document first.
func (s *RedisStore) mutateDoc(ctx context.Context, collection, key string, fn func(doc any, ts int64) (any, error)) (any, error) {
	rkey := docKey(collection, key)
	var result any

	txf := func(tx *redis.Tx) error {
		doc, err := s.readDoc(ctx, tx, collection, key)
		if err != nil {
			return err
		}
		next, err := fn(doc, s.clock.next())
		if err != nil {
			return err
		}
		var payload []byte
		if next != nil {
			if payload, err = json.Marshal(next); err != nil {
				return fmt.Errorf("encode %s/%s: %w", collection, key, err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, rkey)
				pipe.SRem(ctx, indexKey(collection), key)
			} else {
				pipe.Set(ctx, rkey, payload, 0)
				pipe.SAdd(ctx, indexKey(collection), key)
			}
			pipe.Publish(ctx, redisChannel, collection+"/"+key)
			return nil
		})
		result = next
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitRetry(ctx, attempt); err != nil {
				return nil, err
			}
		}
		err := s.client.Watch(ctx, txf, rkey)
		if err == nil {
			s.listeners.notify(collection + "/" + key)
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("mutate %s/%s: %w", collection, key, ErrTooManyRetries)
}

// Set overwrites the value at path
func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, "", map[string]any{path: value})
}

// Update writes the fields relative to path. Fields in the same document are
// applied atomically; fields spanning documents are not.
func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]any) error {
	type write struct {
		sub   []string
		value any
	}
	byDoc := make(map[[2]string][]write)
	var docOrder [][2]string

	for field, value := range fields {
		full := Join(path, field)
		segs, err := validatePath(full)
		if err != nil {
			return err
		}
		v, err := Normalize(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", full, err)
		}
		switch len(segs) {
		case 0:
			return fmt.Errorf("update %q: %w", full, ErrUnsupportedPath)
		case 1:
			if err := s.setCollection(ctx, segs[0], v); err != nil {
				return err
			}
		default:
			id := [2]string{segs[0], segs[1]}
			if _, ok := byDoc[id]; !ok {
				docOrder = append(docOrder, id)
			}
			byDoc[id] = append(byDoc[id], write{sub: segs[2:], value: v})
		}
	}

	for _, id := range docOrder {
		writes := byDoc[id]
		_, err := s.mutateDoc(ctx, id[0], id[1], func(doc any, ts int64) (any, error) {
			for _, w := range writes {
				doc = setAt(doc, w.sub, resolve(w.value, getAt(doc, w.sub), ts))
			}
			return doc, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) setCollection(ctx context.Context, collection string, value any) error {
	children, _ := value.(map[string]any)
	if value != nil && children == nil {
		return fmt.Errorf("set %q to a scalar: %w", collection, ErrUnsupportedPath)
	}

	existing, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers %s: %w", collection, err)
	}
	for _, key := range existing {
		if _, keep := children[key]; keep {
			continue
		}
		if _, err := s.mutateDoc(ctx, collection, key, func(any, int64) (any, error) { return nil, nil }); err != nil {
			return err
		}
	}
	for key, child := range children {
		child := child
		if _, err := s.mutateDoc(ctx, collection, key, func(doc any, ts int64) (any, error) {
			return resolve(child, doc, ts), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// Push appends value under a generated key and returns the key
func (s *RedisStore) Push(ctx context.Context, path string, value any) (string, error) {
	return pushUnique(ctx, s, s.keys, s.maxRetries, path, value)
}

// Transaction runs fn inside a WATCH on the owning document. Paths must be at least
// two segments deep.
func (s *RedisStore) Transaction(ctx context.Context, path string, fn TransactionFunc) (TxResult, error) {
	segs, err := validatePath(path)
	if err != nil {
		return TxResult{}, err
	}
	if len(segs) < 2 {
		return TxResult{}, fmt.Errorf("transaction %q: %w", path, ErrUnsupportedPath)
	}
	sub := segs[2:]

	var current any
	next, err := s.mutateDoc(ctx, segs[0], segs[1], func(doc any, ts int64) (any, error) {
		current = getAt(doc, sub)
		value, err := fn(cloneValue(current))
		if err != nil {
			return nil, err
		}
		normalized, err := Normalize(value)
		if err != nil {
			return nil, err
		}
		return setAt(doc, sub, resolve(normalized, current, ts)), nil
	})
	if errors.Is(err, ErrAbort) {
		return TxResult{Committed: false, Snapshot: NewSnapshot(path, current)}, nil
	}
	if err != nil {
		return TxResult{}, err
	}
	return TxResult{Committed: true, Snapshot: NewSnapshot(path, getAt(next, sub))}, nil
}

// Subscribe delivers the value at path now and after every overlapping change on any instance
func (s *RedisStore) Subscribe(path string, fn func(Snapshot)) (Unsubscribe, error) {
	segs, err := validatePath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("subscribe %q: %w", path, ErrUnsupportedPath)
	}
	return s.listeners.add(Join(path), segs, fn, s.Get)
}

// Close stops the change feed, every subscription and the client
func (s *RedisStore) Close() error {
	s.listeners.closeAll()
	err := s.pubsub.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}
