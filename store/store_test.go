package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

const parisWKT = "POLYGON((2.25 48.81, 2.42 48.81, 2.42 48.90, 2.25 48.90, 2.25 48.81))"

func day(d int) validity.Bound {
	return validity.At(time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC))
}

func window(t *testing.T, begin, end validity.Bound) validity.Set {
	t.Helper()
	paris, err := geometry.ParseWKT(parisWKT)
	require.NoError(t, err)
	track, err := validity.NewTrack(paris, begin, end)
	require.NoError(t, err)
	return validity.NewSet(track)
}

// recorder keeps the commits it receives, and fails when asked to
type recorder struct {
	mutex   sync.Mutex
	commits []store.Commit
	failure error
}

func (r *recorder) SaveCommit(ctx context.Context, commit store.Commit) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.failure != nil {
		return r.failure
	}

	r.commits = append(r.commits, commit)
	return nil
}

func statement(t *testing.T, dictionary *terms.Dictionary, subject, predicate, object string) store.Statement {
	t.Helper()
	var ids [3]terms.TermID
	for index, value := range []string{subject, predicate, object} {
		id, err := dictionary.Intern(terms.MustParse(value))
		require.NoError(t, err)
		ids[index] = id
	}

	return store.Statement{Subject: ids[0], Predicate: ids[1], Object: ids[2]}
}

func TestManagerUpdateAndLookup(t *testing.T) {
	manager := store.NewManager(store.Options{})
	defer manager.Close()

	name := contexts.MustParse("txl://example.org/people")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	root := manager.Head()

	revision, err := manager.Apply(context.Background(), store.NewUpdate(name, window(t, day(1), day(10)), knows))
	require.NoError(t, err)
	assert.Equal(t, root.ID()+1, revision.ID())
	assert.Equal(t, root.ID(), revision.Predecessor())
	assert.Same(t, revision, manager.Head())

	candidates, err := manager.Lookup(context.Background(), []contexts.Name{name}, store.Template{Subject: knows.Subject}, nil, store.LookupOptions{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, knows, candidates[0].Statement)
	assert.True(t, candidates[0].Validity.Equal(window(t, day(1), day(10))))

	// root revision is pinned and still empty
	candidates, err = manager.Lookup(context.Background(), []contexts.Name{name}, store.Template{}, root, store.LookupOptions{})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestManagerUpdateKeepsValidityOutsideInterval(t *testing.T) {
	manager := store.NewManager(store.Options{})
	defer manager.Close()

	name := contexts.MustParse("txl://example.org/people")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	_, err := manager.Apply(context.Background(), store.NewUpdate(name, window(t, day(1), day(10)), knows))
	require.NoError(t, err)

	update := store.NewUpdate(name, window(t, day(1), day(20)), knows)
	update.From, update.To = day(5), day(15)
	_, err = manager.Apply(context.Background(), update)
	require.NoError(t, err)

	value, found := manager.Head().Content().Get(name, knows)
	require.True(t, found)
	assert.True(t, value.Equal(window(t, day(1), day(15))), value.String())
}

func TestManagerClear(t *testing.T) {
	manager := store.NewManager(store.Options{})
	defer manager.Close()

	name := contexts.MustParse("txl://example.org/people")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	likes := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:likes>", "<urn:bob>")
	_, err := manager.Apply(context.Background(), store.NewUpdate(name, window(t, day(1), day(10)), knows, likes))
	require.NoError(t, err)

	clear := store.NewClear(name)
	clear.From, clear.To = day(3), day(5)
	_, err = manager.Apply(context.Background(), clear)
	require.NoError(t, err)

	value, found := manager.Head().Content().Get(name, likes)
	require.True(t, found)
	expected := window(t, day(1), day(3)).Union(window(t, day(5), day(10)))
	assert.True(t, value.Equal(expected), value.String())

	_, err = manager.Apply(context.Background(), store.NewClear(name))
	require.NoError(t, err)
	assert.Equal(t, 0, manager.Head().Content().Len(name))
	assert.Empty(t, manager.Head().Content().Contexts())
}

func TestManagerRejectsInvalidOperations(t *testing.T) {
	manager := store.NewManager(store.Options{})
	defer manager.Close()

	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	reserved := contexts.MustParse("txl://example.org/#audit")
	head := manager.Head()

	_, err := manager.Apply(context.Background(), store.NewUpdate(reserved, window(t, day(1), day(2)), knows))
	assert.True(t, errors.Is(err, store.ErrReservedContext))

	update := store.NewUpdate(reserved, window(t, day(1), day(2)), knows)
	update.System = true
	_, err = manager.Apply(context.Background(), update)
	assert.NoError(t, err)

	clear := store.NewClear(contexts.MustParse("txl://example.org/people"))
	clear.From, clear.To = day(5), day(5)
	_, err = manager.Apply(context.Background(), clear)
	assert.True(t, errors.Is(err, validity.ErrMalformedInterval))

	_, err = manager.Apply(context.Background(), store.NewUpdate(contexts.Name{}, validity.OmnipresentSet(), knows))
	assert.True(t, errors.Is(err, store.ErrInvalidOperation))

	invalid := store.Statement{Subject: knows.Subject}
	_, err = manager.Apply(context.Background(), store.NewUpdate(contexts.MustParse("txl://example.org/people"), validity.OmnipresentSet(), invalid))
	assert.True(t, errors.Is(err, store.ErrInvalidOperation))

	assert.Equal(t, head.ID()+1, manager.Head().ID())
}

func TestManagerConcurrentWriters(t *testing.T) {
	manager := store.NewManager(store.Options{MaxRetries: 16})
	defer manager.Close()

	parent := contexts.MustParse("txl://example.org/people")
	var statements []store.Statement
	for _, object := range []string{"<urn:a>", "<urn:b>", "<urn:c>", "<urn:d>", "<urn:e>", "<urn:f>"} {
		statements = append(statements, statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", object))
	}

	// each writer owns a context, so that updates do not clear each other
	var group sync.WaitGroup
	for index, current := range statements {
		name, err := parent.Child(string(rune('a' + index)))
		require.NoError(t, err)
		update := store.NewUpdate(name, window(t, day(1), day(10)), current)
		group.Add(1)
		go func() {
			defer group.Done()
			_, err := manager.Apply(context.Background(), update)
			assert.NoError(t, err)
		}()
	}

	group.Wait()
	assert.Equal(t, len(statements)+1, manager.Timeline().Len())
	assert.Len(t, manager.Head().Content().Contexts(), len(statements))
	candidates := manager.Head().Content().Lookup([]contexts.Name{parent}, store.Template{}, true)
	assert.Len(t, candidates, len(statements))
}

func TestManagerPersistence(t *testing.T) {
	persister := &recorder{}
	manager := store.NewManager(store.Options{Persister: persister})
	defer manager.Close()

	name := contexts.MustParse("txl://example.org/people")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	revision, err := manager.Apply(context.Background(), store.NewUpdate(name, window(t, day(1), day(10)), knows))
	require.NoError(t, err)

	require.Len(t, persister.commits, 1)
	commit := persister.commits[0]
	assert.Equal(t, revision.ID(), commit.Revision)
	assert.Equal(t, revision.Predecessor(), commit.Predecessor)
	assert.Equal(t, []contexts.Name{name}, commit.Changed)
	assert.Equal(t, terms.TermID(1), commit.FirstTermID)
	assert.Len(t, commit.Terms, 3)

	persister.failure = errors.New("connection refused")
	_, err = manager.Apply(context.Background(), store.NewClear(name))
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))
	assert.Same(t, revision, manager.Head())

	persister.failure = nil
	other := statement(t, manager.Dictionary(), "<urn:bob>", "<urn:knows>", "<urn:carol>")
	_, err = manager.Apply(context.Background(), store.NewUpdate(name, window(t, day(1), day(10)), other))
	require.NoError(t, err)
	require.Len(t, persister.commits, 2)
	assert.Equal(t, terms.TermID(4), persister.commits[1].FirstTermID)
	assert.Len(t, persister.commits[1].Terms, 1)
}

func TestManagerCommitTimestamps(t *testing.T) {
	moment := time.Date(2024, time.March, 1, 10, 0, 0, 123456789, time.FixedZone("CET", 3600))
	persister := &recorder{}
	manager := store.NewManager(store.Options{
		Persister: persister,
		Clock:     func() time.Time { return moment },
	})
	defer manager.Close()

	name := contexts.MustParse("txl://example.org/people")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	revision, err := manager.Apply(context.Background(), store.NewUpdate(name, window(t, day(1), day(10)), knows))
	require.NoError(t, err)

	require.Len(t, persister.commits, 1)
	expected := time.Date(2024, time.March, 1, 9, 0, 0, 123456000, time.UTC)
	assert.Equal(t, expected, persister.commits[0].Timestamp)
	assert.Equal(t, expected, revision.Timestamp())

	// a reloaded revision is found at the same moment
	found, ok := manager.Timeline().At(persister.commits[0].Timestamp)
	require.True(t, ok)
	assert.Same(t, revision, found)
}

func TestManagerObservers(t *testing.T) {
	manager := store.NewManager(store.Options{})
	defer manager.Close()

	var seen []revisions.ID
	var changes [][]contexts.Name
	manager.Observe(func(ctx context.Context, revision *store.Revision, changed []contexts.Name) {
		assert.NoError(t, ctx.Err())
		assert.Same(t, revision, manager.Head())
		seen = append(seen, revision.ID())
		changes = append(changes, changed)
	})
	manager.Observe(nil)

	name := contexts.MustParse("txl://example.org/people")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	ctx, cancel := context.WithCancel(context.Background())
	_, err := manager.Apply(ctx, store.NewUpdate(name, window(t, day(1), day(10)), knows))
	require.NoError(t, err)
	cancel()

	// invalid operations commit nothing
	_, err = manager.Apply(context.Background(), store.NewClear(contexts.Name{}))
	require.Error(t, err)

	outcome := <-manager.Submit(context.Background(), store.NewClear(name))
	require.NoError(t, outcome.Err)

	assert.Equal(t, []revisions.ID{2, 3}, seen)
	assert.Equal(t, [][]contexts.Name{{name}, {name}}, changes)
}

func TestManagerSubmit(t *testing.T) {
	manager := store.NewManager(store.Options{QueueSize: 2})
	name := contexts.MustParse("txl://example.org/people")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")

	var results []<-chan store.Result
	for index := 0; index < 5; index++ {
		results = append(results, manager.Submit(context.Background(), store.NewUpdate(name, window(t, day(1), day(index+2)), knows)))
	}

	manager.Close()
	var ids []revisions.ID
	for _, result := range results {
		outcome := <-result
		require.NoError(t, outcome.Err)
		ids = append(ids, outcome.Revision.ID())
	}

	assert.Equal(t, []revisions.ID{2, 3, 4, 5, 6}, ids)

	outcome := <-manager.Submit(context.Background(), store.NewClear(name))
	assert.True(t, errors.Is(outcome.Err, store.ErrStoreUnavailable))
	// closing twice is fine
	manager.Close()
}

func TestManagerLookupDescendants(t *testing.T) {
	manager := store.NewManager(store.Options{})
	defer manager.Close()

	parent := contexts.MustParse("txl://example.org/people")
	child := contexts.MustParse("txl://example.org/people/friends")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	likes := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:likes>", "<urn:bob>")

	_, err := manager.Apply(context.Background(),
		store.NewUpdate(parent, window(t, day(1), day(5)), knows),
		store.NewUpdate(child, window(t, day(3), day(10)), knows, likes),
	)
	require.NoError(t, err)

	template := store.Template{Subject: knows.Subject}
	candidates, err := manager.Lookup(context.Background(), []contexts.Name{parent}, template, nil, store.LookupOptions{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	candidates, err = manager.Lookup(context.Background(), []contexts.Name{parent}, template, nil, store.LookupOptions{IncludeDescendants: true})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, knows, candidates[0].Statement)
	assert.True(t, candidates[0].Validity.Equal(window(t, day(1), day(10))))
	assert.Equal(t, likes, candidates[1].Statement)

	candidates, err = manager.Lookup(context.Background(), []contexts.Name{parent}, store.Template{Predicate: likes.Predicate}, nil, store.LookupOptions{IncludeDescendants: true})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, likes, candidates[0].Statement)
}

func TestManagerInsertKeepsOtherStatements(t *testing.T) {
	manager := store.NewManager(store.Options{})
	defer manager.Close()

	name := contexts.MustParse("txl://example.org/people")
	knows := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:knows>", "<urn:bob>")
	likes := statement(t, manager.Dictionary(), "<urn:alice>", "<urn:likes>", "<urn:bob>")
	_, err := manager.Apply(context.Background(),
		store.NewInsert(name, window(t, day(1), day(10)), knows),
		store.NewInsert(name, window(t, day(5), day(15)), likes),
		store.NewInsert(name, window(t, day(8), day(12)), knows),
	)
	require.NoError(t, err)

	value, found := manager.Head().Content().Get(name, knows)
	require.True(t, found)
	assert.True(t, value.Equal(window(t, day(1), day(12))), value.String())

	value, found = manager.Head().Content().Get(name, likes)
	require.True(t, found)
	assert.True(t, value.Equal(window(t, day(5), day(15))), value.String())

	_, err = manager.Apply(context.Background(), store.NewInsert(contexts.MustParse("txl://example.org/#audit"), validity.OmnipresentSet(), knows))
	assert.True(t, errors.Is(err, store.ErrReservedContext))
}

func TestRestoreState(t *testing.T) {
	name := contexts.MustParse("txl://example.org/people")
	other := contexts.MustParse("txl://example.org/empty")
	knows := store.Statement{Subject: 1, Predicate: 2, Object: 3}
	state := store.RestoreState(map[contexts.Name][]store.Candidate{
		name: {
			{Statement: knows, Validity: window(t, day(1), day(5))},
			{Statement: knows, Validity: window(t, day(5), day(8))},
		},
		other: {{Statement: knows, Validity: validity.EmptySet()}},
	})

	assert.Equal(t, []contexts.Name{name}, state.Contexts())
	value, found := state.Get(name, knows)
	require.True(t, found)
	assert.True(t, value.Equal(window(t, day(1), day(8))))
}
