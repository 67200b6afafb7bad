package revisions

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrRevisionConflict is returned when appending after a revision that is no more the head
var ErrRevisionConflict = errors.New("revision conflict")

// ID is the store-local identity of a revision, root is 1
type ID uint64

// Revision is an immutable snapshot of content at a commit point
type Revision[C any] struct {
	id          ID
	timestamp   time.Time
	predecessor ID
	content     C
}

// ID returns the identity of the revision
func (r *Revision[C]) ID() ID {
	return r.id
}

// Timestamp returns the commit time
func (r *Revision[C]) Timestamp() time.Time {
	return r.timestamp
}

// Predecessor returns the id of the previous revision, 0 for the root
func (r *Revision[C]) Predecessor() ID {
	return r.predecessor
}

// IsRoot returns true for the first revision
func (r *Revision[C]) IsRoot() bool {
	return r.predecessor == 0
}

// Content returns the payload of the revision
func (r *Revision[C]) Content() C {
	return r.content
}

// Timeline is a linear chain of revisions.
// Head and Get never block.
// Append is a compare and swap on the head, there is no fork
type Timeline[C any] struct {
	// head is the last committed revision
	head atomic.Pointer[Revision[C]]
	// revisions maps ID to *Revision[C]
	revisions sync.Map
	// first is the id of the oldest revision in the timeline
	first ID
	// writer serializes appends
	writer sync.Mutex
	// now returns current time, mostly to make tests deterministic
	now func() time.Time
}

// NewTimeline returns a timeline with a root revision holding root content
func NewTimeline[C any](root C) *Timeline[C] {
	return NewTimelineWithClock(root, time.Now)
}

// NewTimelineWithClock returns a timeline using now to timestamp revisions
func NewTimelineWithClock[C any](root C, now func() time.Time) *Timeline[C] {
	result := &Timeline[C]{now: now, first: 1}
	first := &Revision[C]{id: 1, timestamp: now().UTC(), content: root}
	result.revisions.Store(first.id, first)
	result.head.Store(first)
	return result
}

// Restore returns a timeline starting at a known revision, for instance a loaded one
func Restore[C any](id ID, timestamp time.Time, predecessor ID, content C) *Timeline[C] {
	result := &Timeline[C]{now: time.Now, first: id}
	first := &Revision[C]{id: id, timestamp: timestamp.UTC(), predecessor: predecessor, content: content}
	result.revisions.Store(first.id, first)
	result.head.Store(first)
	return result
}

// Head returns the current head
func (t *Timeline[C]) Head() *Revision[C] {
	return t.head.Load()
}

// Append adds content as the successor of predecessor.
// If predecessor is not the head anymore, it returns ErrRevisionConflict and caller should retry
func (t *Timeline[C]) Append(predecessor *Revision[C], content C) (*Revision[C], error) {
	return t.AppendAt(predecessor, content, t.now())
}

// AppendAt is Append with a known commit time.
// Commit time is never before predecessor commit time
func (t *Timeline[C]) AppendAt(predecessor *Revision[C], content C, moment time.Time) (*Revision[C], error) {
	if predecessor == nil {
		return nil, errors.New("nil predecessor")
	}

	t.writer.Lock()
	defer t.writer.Unlock()

	timestamp := moment.UTC()
	if timestamp.Before(predecessor.timestamp) {
		timestamp = predecessor.timestamp
	}

	next := &Revision[C]{
		id:          predecessor.id + 1,
		timestamp:   timestamp,
		predecessor: predecessor.id,
		content:     content,
	}

	// a rejected revision is never stored
	if !t.head.CompareAndSwap(predecessor, next) {
		return nil, errors.Wrapf(ErrRevisionConflict, "revision %d is not the head", predecessor.id)
	}

	t.revisions.Store(next.id, next)
	return next, nil
}

// Get returns the revision with that id, if any.
// Head is found even before it is stored by id
func (t *Timeline[C]) Get(id ID) (*Revision[C], bool) {
	if value, found := t.revisions.Load(id); found {
		return value.(*Revision[C]), true
	}

	if head := t.head.Load(); head != nil && head.id == id {
		return head, true
	}

	return nil, false
}

// Successor returns the revision after rev, if any
func (t *Timeline[C]) Successor(rev *Revision[C]) (*Revision[C], bool) {
	if rev == nil || rev.id >= t.Head().id {
		return nil, false
	}

	return t.Get(rev.id + 1)
}

// Predecessor returns the revision before rev, if any
func (t *Timeline[C]) Predecessor(rev *Revision[C]) (*Revision[C], bool) {
	if rev == nil || rev.predecessor == 0 {
		return nil, false
	}

	return t.Get(rev.predecessor)
}

// Len returns the number of revisions in the timeline
func (t *Timeline[C]) Len() int {
	return int(t.Head().id-t.first) + 1
}

// At returns the last revision committed at or before moment
func (t *Timeline[C]) At(moment time.Time) (*Revision[C], bool) {
	first := t.first
	count := t.Len()
	// index of the first revision strictly after moment
	index := sort.Search(count, func(i int) bool {
		rev, found := t.Get(first + ID(i))
		return !found || rev.timestamp.After(moment)
	})

	if index == 0 {
		return nil, false
	}

	return t.Get(first + ID(index-1))
}
