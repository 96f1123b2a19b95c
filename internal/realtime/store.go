package realtime

//go:generate mockgen -source=store.go -destination=mock_store.go -package=realtime

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidPath     = errors.New("invalid path")
	ErrUnsupportedPath = errors.New("operation not supported at this path")
	ErrAbort           = errors.New("transaction aborted")
	ErrTooManyRetries  = errors.New("transaction retried too many times")
	ErrClosed          = errors.New("store closed")
)

const (
	defaultMaxRetries = 25
	retryBaseDelay    = time.Millisecond
	retryMaxDelay     = 40 * time.Millisecond
)

// TransactionFunc computes the next value from the current one. Returning ErrAbort
// ends the transaction without writing.
type TransactionFunc func(current any) (any, error)

// TxResult reports the outcome of a transaction
type TxResult struct {
	Committed bool
	Snapshot  Snapshot
}

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Store is a path addressed, server synchronized JSON tree
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Push(ctx context.Context, path string, value any) (string, error)
	Transaction(ctx context.Context, path string, fn TransactionFunc) (TxResult, error)
	Subscribe(path string, fn func(Snapshot)) (Unsubscribe, error)
	Close() error
}

// Remove deletes the node at path
func Remove(ctx context.Context, s Store, path string) error {
	return s.Set(ctx, path, nil)
}

// AddNumber atomically adds delta to the number at path and returns the new value
func AddNumber(ctx context.Context, s Store, path string, delta float64) (float64, error) {
	res, err := s.Transaction(ctx, path, func(current any) (any, error) {
		n, _ := current.(float64)
		return n + delta, nil
	})
	if err != nil {
		return 0, err
	}
	var n float64
	if err := res.Snapshot.Decode(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// retryDelay is the pause before the given retry: exponential in attempt, capped,
// with the upper half jittered so conflicting writers spread out
func retryDelay(attempt int) time.Duration {
	d := retryMaxDelay
	if attempt < 6 {
		d = min(retryBaseDelay<<attempt, retryMaxDelay)
	}
	return d/2 + rand.N(d/2+1)
}

// waitRetry sleeps for retryDelay(attempt) unless ctx ends first
func waitRetry(ctx context.Context, attempt int) error {
	t := time.NewTimer(retryDelay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pushUnique writes value under a fresh key. Writers on other instances may draw
// the same key, so a taken key is never overwritten and another one is drawn.
func pushUnique(ctx context.Context, s Store, keys *KeyGenerator, attempts int, path string, value any) (string, error) {
	v, err := Normalize(value)
	if err != nil {
		return "", fmt.Errorf("push %s: %w", path, err)
	}
	for i := 0; i < attempts; i++ {
		key := keys.Next()
		res, err := s.Transaction(ctx, Join(path, key), func(current any) (any, error) {
			if current != nil {
				return nil, ErrAbort
			}
			return v, nil
		})
		if err != nil {
			return "", err
		}
		if res.Committed {
			return key, nil
		}
	}
	return "", fmt.Errorf("push %s: %w", path, ErrTooManyRetries)
}

// KeyGenerator produces unique, creation ordered keys for Push
type KeyGenerator struct {
	node   *snowflake.Node
	nodeID int64
}

// NewKeyGenerator creates a generator for the given node id (0..1023)
func NewKeyGenerator(nodeID int64) (*KeyGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create key generator: %w", err)
	}
	return &KeyGenerator{node: node, nodeID: nodeID}, nil
}

// NodeID is the snowflake node the keys are drawn from
func (g *KeyGenerator) NodeID() int64 {
	return g.nodeID
}

// Next returns a fixed width key so lexical order matches generation order
func (g *KeyGenerator) Next() string {
	return fmt.Sprintf("%019d", g.node.Generate().Int64())
}

type options struct {
	clock      func() time.Time
	keys       *KeyGenerator
	maxRetries int
}

// Option configures a store backend
type Option func(*options)

// WithClock overrides the clock used for server timestamps
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithKeyGenerator overrides the Push key generator
func WithKeyGenerator(keys *KeyGenerator) Option {
	return func(o *options) { o.keys = keys }
}

// WithMaxRetries bounds the optimistic transaction retries
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(&o)
	}
	if o.keys == nil {
		o.keys, _ = NewKeyGenerator(1)
	}
	if o.maxRetries <= 0 {
		o.maxRetries = defaultMaxRetries
	}
	return o
}

// serverClock hands out strictly increasing millisecond timestamps
type serverClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func (c *serverClock) next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return ms
}
