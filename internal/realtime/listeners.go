package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"aarath-auction/utils"
)

const readRetryDelay = time.Second

type reader func(ctx context.Context, path string) (Snapshot, error)

// listener delivers the latest value at its path. Pending notifications are
// coalesced: the callback always sees the newest value, never a backlog.
type listener struct {
	path    string
	segs    []string
	fn      func(Snapshot)
	read    reader
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func (l *listener) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *listener) stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.done)
	})
}

func (l *listener) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.signal:
		}

		snap, err := l.read(context.Background(), l.path)
		if err != nil {
			// silent until the backend is reachable again
			utils.Debug("realtime: subscription read failed", map[string]any{"path": l.path, "error": err.Error()})
			time.AfterFunc(readRetryDelay, l.wake)
			continue
		}
		if l.stopped.Load() {
			return
		}
		l.fn(snap)
	}
}

type listenerSet struct {
	mu     sync.RWMutex
	nextID uint64
	byID   map[uint64]*listener
	closed bool
}

func newListenerSet() *listenerSet {
	return &listenerSet{byID: make(map[uint64]*listener)}
}

func (ls *listenerSet) add(path string, segs []string, fn func(Snapshot), read reader) (Unsubscribe, error) {
	l := &listener{
		path:   path,
		segs:   segs,
		fn:     fn,
		read:   read,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return nil, ErrClosed
	}
	ls.nextID++
	id := ls.nextID
	ls.byID[id] = l
	ls.mu.Unlock()

	go l.run()
	l.wake() // initial value

	return func() {
		ls.mu.Lock()
		delete(ls.byID, id)
		ls.mu.Unlock()
		l.stop()
	}, nil
}

func (ls *listenerSet) notify(path string) {
	segs := Split(path)
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	for _, l := range ls.byID {
		if overlaps(l.segs, segs) {
			l.wake()
		}
	}
}

func (ls *listenerSet) notifyAll() {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	for _, l := range ls.byID {
		l.wake()
	}
}

func (ls *listenerSet) len() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return len(ls.byID)
}

func (ls *listenerSet) closeAll() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.closed = true
	for id, l := range ls.byID {
		l.stop()
		delete(ls.byID, id)
	}
}
