package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned when subscribing to a closed store.
var ErrClosed = errors.New("store is closed")

// Listener receives subtree snapshots.
type Listener func(Snapshot)

type subscription struct {
	id          int
	path        string
	fn          Listener
	delivered   bool
	fingerprint string
	rev         int64
	active      bool
}

// Subscribe registers fn for changes to the subtree at path.
//
// fn is called once with the current snapshot shortly after registration and
// again whenever the subtree's content changes, whether the change was
// committed by this process or another one sharing the database file.
// Consecutive deliveries always differ in content. Callbacks for all
// subscriptions run one at a time on a single goroutine, in commit order.
//
// The returned function cancels the subscription. A callback already running
// on the dispatcher may still finish; none starts afterwards. Listeners must
// not call Close.
func (s *Store) Subscribe(path string, fn Listener) (func(), error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	select {
	case <-s.closing:
		s.mu.Unlock()
		return nil, ErrClosed
	default:
	}

	s.nextSub++
	sub := &subscription{id: s.nextSub, path: clean, fn: fn, active: true}
	s.subs[sub.id] = sub
	if !s.running {
		s.running = true
		go s.dispatch()
	}
	s.mu.Unlock()

	s.signal()

	return func() {
		s.mu.Lock()
		sub.active = false
		delete(s.subs, sub.id)
		s.mu.Unlock()
	}, nil
}

// signal wakes the dispatcher without blocking. The buffer of one coalesces
// bursts of commits into a single pass.
func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch is the subscription loop. It wakes on local commits, on file
// events in the database directory, and on a poll ticker as a fallback for
// writers whose file events are missed.
func (s *Store) dispatch() {
	defer close(s.done)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("file watcher unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(s.Dir()); err != nil {
			s.logger.Warn("failed to watch database directory", "dir", s.Dir(), "error", err)
		} else {
			events = watcher.Events
			errs = watcher.Errors
		}
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	base := filepath.Base(s.path)
	ctx := context.Background()

	for {
		select {
		case <-s.closing:
			return
		case <-s.wake:
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("file watcher error", "error", err)
			continue
		}

		if err := s.deliver(ctx); err != nil {
			s.logger.Error("subscription delivery failed", "error", err)
		}
	}
}

// deliver runs one pass over all subscriptions, calling those whose subtree
// content differs from what they last saw.
func (s *Store) deliver(ctx context.Context) error {
	rev, err := s.Revision(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	pending := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if !sub.delivered || sub.rev != rev {
			pending = append(pending, sub)
		}
	}
	s.mu.Unlock()
	sortSubscriptions(pending)

	for _, sub := range pending {
		select {
		case <-s.closing:
			return nil
		default:
		}

		snap, err := s.Read(ctx, sub.path)
		if err != nil {
			return fmt.Errorf("subscription %q: %w", sub.path, err)
		}
		fp, err := Fingerprint(snap.Value)
		if err != nil {
			return fmt.Errorf("subscription %q: %w", sub.path, err)
		}

		s.mu.Lock()
		changed := !sub.delivered || fp != sub.fingerprint
		sub.rev = snap.Rev
		sub.delivered = true
		sub.fingerprint = fp
		active := sub.active
		s.mu.Unlock()

		if changed && active {
			sub.fn(snap)
		}
	}
	return nil
}

func sortSubscriptions(subs []*subscription) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
}
