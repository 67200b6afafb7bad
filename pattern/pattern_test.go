package pattern_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

const parisWKT = "POLYGON((2.25 48.81, 2.42 48.81, 2.42 48.90, 2.25 48.90, 2.25 48.81))"

var (
	first  = contexts.MustParse("txl://example.org/first")
	second = contexts.MustParse("txl://example.org/second")
)

func day(d int) validity.Bound {
	return validity.At(time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC))
}

func window(t *testing.T, region geometry.Region, begin, end validity.Bound) validity.Set {
	t.Helper()
	track, err := validity.NewTrack(region, begin, end)
	require.NoError(t, err)
	return validity.NewSet(track)
}

// fixture is a store with a dictionary and a paris region
type fixture struct {
	manager *store.Manager
	paris   geometry.Region
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	paris, err := geometry.ParseWKT(parisWKT)
	require.NoError(t, err)
	manager := store.NewManager(store.Options{})
	t.Cleanup(manager.Close)
	return &fixture{manager: manager, paris: paris}
}

func (f *fixture) id(t *testing.T, value string) terms.TermID {
	t.Helper()
	id, err := f.manager.Dictionary().Intern(terms.MustParse(value))
	require.NoError(t, err)
	return id
}

func (f *fixture) add(t *testing.T, name contexts.Name, subject, predicate, object string, begin, end validity.Bound) {
	t.Helper()
	statement := store.Statement{Subject: f.id(t, subject), Predicate: f.id(t, predicate), Object: f.id(t, object)}
	_, err := f.manager.Apply(context.Background(), store.NewInsert(name, window(t, f.paris, begin, end), statement))
	require.NoError(t, err)
}

func TestSingleTemplateMatches(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	f.add(t, second, "<urn:alice>", "<urn:knows>", "<urn:carol>", day(5), day(15))

	p := pattern.NewPattern()
	subject := p.Variable("s")
	object := p.Variable("?o")
	require.NoError(t, p.Add(subject, pattern.TermNode(f.id(t, "<urn:knows>")), object))

	evaluator := pattern.NewEvaluator(f.manager, nil, nil)
	results := make(map[terms.TermID]validity.Set)
	found, err := evaluator.Evaluate(context.Background(), p, nil,
		[]contexts.Name{first, second},
		window(t, geometry.Universe(), day(1), day(20)),
		nil,
		func(binding pattern.Binding, value validity.Set) bool {
			assert.Equal(t, f.id(t, "<urn:alice>"), binding[subject.Variable()])
			results[binding[object.Variable()]] = value
			return true
		},
	)

	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, results, 2)
	assert.True(t, results[f.id(t, "<urn:bob>")].Equal(window(t, f.paris, day(1), day(10))))
	assert.True(t, results[f.id(t, "<urn:carol>")].Equal(window(t, f.paris, day(5), day(15))))
}

func TestSameBindingInSeveralContextsIsMerged(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	f.add(t, second, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(5), day(15))

	p := pattern.NewPattern()
	require.NoError(t, p.Add(pattern.TermNode(f.id(t, "<urn:alice>")), pattern.TermNode(f.id(t, "<urn:knows>")), p.Variable("o")))

	var matches []pattern.Match
	for match, err := range pattern.NewEvaluator(f.manager, nil, nil).Matches(context.Background(), p, nil,
		[]contexts.Name{first, second}, window(t, geometry.Universe(), day(1), day(20)), nil) {
		require.NoError(t, err)
		matches = append(matches, match)
	}

	require.Len(t, matches, 1)
	assert.True(t, matches[0].Window.Equal(window(t, f.paris, day(1), day(15))))
}

func TestJoinOnSharedVariable(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	f.add(t, first, "<urn:bob>", "<urn:livesIn>", "<urn:paris>", day(5), day(20))
	f.add(t, first, "<urn:carol>", "<urn:livesIn>", "<urn:paris>", day(1), day(20))

	p := pattern.NewPattern()
	friend := p.Variable("friend")
	require.NoError(t, p.Add(pattern.TermNode(f.id(t, "<urn:alice>")), pattern.TermNode(f.id(t, "<urn:knows>")), friend))
	require.NoError(t, p.Add(friend, pattern.TermNode(f.id(t, "<urn:livesIn>")), p.Variable("city")))

	var matches []pattern.Match
	for match, err := range pattern.NewEvaluator(f.manager, nil, nil).Matches(context.Background(), p, nil,
		[]contexts.Name{first}, window(t, geometry.Universe(), day(1), day(20)), nil) {
		require.NoError(t, err)
		matches = append(matches, match)
	}

	require.Len(t, matches, 1)
	assert.Equal(t, f.id(t, "<urn:bob>"), matches[0].Binding[friend.Variable()])
	assert.True(t, matches[0].Window.Equal(window(t, f.paris, day(5), day(10))), matches[0].Window.String())
	assert.Equal(t, map[string]terms.TermID{"friend": f.id(t, "<urn:bob>"), "city": f.id(t, "<urn:paris>")}, matches[0].Binding.Names(p))
}

func TestWindowPrunesMatches(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))

	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), p.Variable("p"), p.Variable("o")))
	evaluator := pattern.NewEvaluator(f.manager, nil, nil)

	found, err := evaluator.Evaluate(context.Background(), p, nil, []contexts.Name{first},
		window(t, geometry.Universe(), day(12), day(20)), nil, nil)
	require.NoError(t, err)
	assert.False(t, found)

	berlin, err := geometry.ParseWKT("POLYGON((13.08 52.33, 13.76 52.33, 13.76 52.67, 13.08 52.67, 13.08 52.33))")
	require.NoError(t, err)
	found, err = evaluator.Evaluate(context.Background(), p, nil, []contexts.Name{first},
		window(t, berlin, day(1), day(20)), nil, nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEmptyWindowOrNoContexts(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))

	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), p.Variable("p"), p.Variable("o")))
	evaluator := pattern.NewEvaluator(f.manager, nil, nil)
	calls := 0
	handler := func(pattern.Binding, validity.Set) bool {
		calls++
		return true
	}

	found, err := evaluator.Evaluate(context.Background(), p, nil, []contexts.Name{first}, validity.EmptySet(), nil, handler)
	assert.NoError(t, err)
	assert.False(t, found)

	found, err = evaluator.Evaluate(context.Background(), p, nil, nil, validity.OmnipresentSet(), nil, handler)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, calls)
}

func TestInconsistentBindings(t *testing.T) {
	f := newFixture(t)
	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), p.Variable("p"), p.Variable("o")))
	evaluator := pattern.NewEvaluator(f.manager, nil, nil)

	_, err := evaluator.Evaluate(context.Background(), p, pattern.Binding{9: 1}, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	assert.True(t, errors.Is(err, pattern.ErrInconsistentBinding))

	_, err = evaluator.Evaluate(context.Background(), p, pattern.Binding{1: 0}, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	assert.True(t, errors.Is(err, pattern.ErrInconsistentBinding))

	_, err = p.Bind(map[string]terms.TermID{"unknown": 1})
	assert.True(t, errors.Is(err, pattern.ErrInconsistentBinding))

	_, err = evaluator.Evaluate(context.Background(), pattern.NewPattern(), nil, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	assert.True(t, errors.Is(err, pattern.ErrInvalidPattern))

	assert.True(t, errors.Is(p.Add(pattern.Node{}, p.Variable("p"), p.Variable("o")), pattern.ErrInvalidPattern))
}

func TestBindingOnUnusedVariable(t *testing.T) {
	f := newFixture(t)
	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), p.Variable("p"), p.Variable("o")))
	// declared, but in no template
	lonely := p.Variable("lonely")
	evaluator := pattern.NewEvaluator(f.manager, nil, nil)

	_, err := p.Bind(map[string]terms.TermID{"lonely": f.id(t, "<urn:alice>")})
	assert.True(t, errors.Is(err, pattern.ErrInconsistentBinding))

	_, err = evaluator.Evaluate(context.Background(), p, pattern.Binding{lonely.Variable(): f.id(t, "<urn:alice>")}, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	assert.True(t, errors.Is(err, pattern.ErrInconsistentBinding))

	binding, err := p.Bind(map[string]terms.TermID{"s": f.id(t, "<urn:alice>")})
	require.NoError(t, err)
	assert.Len(t, binding, 1)
}

func TestInitialBindingAndRepeatedVariable(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	f.add(t, second, "<urn:alice>", "<urn:knows>", "<urn:alice>", day(1), day(10))
	f.add(t, second, "<urn:alice>", "<urn:knows>", "<urn:carol>", day(1), day(10))
	evaluator := pattern.NewEvaluator(f.manager, nil, nil)
	names := []contexts.Name{first, second}
	all := validity.OmnipresentSet()

	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), pattern.TermNode(f.id(t, "<urn:knows>")), p.Variable("o")))
	binding, err := p.Bind(map[string]terms.TermID{"?o": f.id(t, "<urn:carol>")})
	require.NoError(t, err)

	count := 0
	found, err := evaluator.Evaluate(context.Background(), p, binding, names, all, nil, func(values pattern.Binding, _ validity.Set) bool {
		count++
		assert.Equal(t, f.id(t, "<urn:carol>"), values[2])
		return true
	})

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, count)
	// initial binding is not changed
	assert.Len(t, binding, 1)

	self := pattern.NewPattern()
	x := self.Variable("x")
	require.NoError(t, self.Add(x, pattern.TermNode(f.id(t, "<urn:knows>")), x))
	count = 0
	found, err = evaluator.Evaluate(context.Background(), self, nil, names, all, nil, func(values pattern.Binding, _ validity.Set) bool {
		count++
		assert.Equal(t, f.id(t, "<urn:alice>"), values[x.Variable()])
		return true
	})

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, count)
}

func TestEarlyStop(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	f.add(t, second, "<urn:alice>", "<urn:knows>", "<urn:carol>", day(1), day(10))
	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), p.Variable("p"), p.Variable("o")))
	evaluator := pattern.NewEvaluator(f.manager, nil, nil)
	names := []contexts.Name{first, second}

	count := 0
	found, err := evaluator.Evaluate(context.Background(), p, nil, names, validity.OmnipresentSet(), nil, func(pattern.Binding, validity.Set) bool {
		count++
		return false
	})

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, count)

	count = 0
	for range evaluator.Matches(context.Background(), p, nil, names, validity.OmnipresentSet(), nil) {
		count++
		break
	}

	assert.Equal(t, 1, count)
}

func TestEvaluationIsPinnedToRevision(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	pinned := f.manager.Head()
	_, err := f.manager.Apply(context.Background(), store.NewClear(first))
	require.NoError(t, err)

	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), p.Variable("p"), p.Variable("o")))
	evaluator := pattern.NewEvaluator(f.manager, nil, nil)

	found, err := evaluator.Evaluate(context.Background(), p, nil, []contexts.Name{first}, validity.OmnipresentSet(), pinned, nil)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = evaluator.Evaluate(context.Background(), p, nil, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDescendantContexts(t *testing.T) {
	f := newFixture(t)
	child, err := first.Child("child")
	require.NoError(t, err)
	f.add(t, child, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))

	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), p.Variable("p"), p.Variable("o")))
	evaluator := pattern.NewEvaluator(f.manager, nil, nil)

	found, err := evaluator.Evaluate(context.Background(), p, nil, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = evaluator.WithOptions(pattern.Options{IncludeDescendants: true}).
		Evaluate(context.Background(), p, nil, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	require.NoError(t, err)
	assert.True(t, found)
}

// failing is a source that fails on lookup
type failing struct {
	*store.Manager
}

func (f failing) Lookup(context.Context, []contexts.Name, store.Template, *store.Revision, store.LookupOptions) ([]store.Candidate, error) {
	return nil, store.ErrStoreUnavailable
}

func TestSourceErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	p := pattern.NewPattern()
	require.NoError(t, p.Add(p.Variable("s"), p.Variable("p"), p.Variable("o")))
	evaluator := pattern.NewEvaluator(failing{f.manager}, nil, nil)

	found, err := evaluator.Evaluate(context.Background(), p, nil, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	assert.False(t, found)
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))

	var last error
	for _, err := range evaluator.Matches(context.Background(), p, nil, []contexts.Name{first}, validity.OmnipresentSet(), nil) {
		last = err
	}

	assert.True(t, errors.Is(last, store.ErrStoreUnavailable))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pattern.NewEvaluator(f.manager, nil, nil).Evaluate(ctx, p, nil, []contexts.Name{first}, validity.OmnipresentSet(), nil, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCompile(t *testing.T) {
	f := newFixture(t)
	f.add(t, first, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))

	p, known, err := pattern.Compile([][3]string{{"?x", "<urn:knows>", "?y"}, {"?y", "<urn:knows>", "?z"}}, f.manager.Dictionary())
	require.NoError(t, err)
	assert.True(t, known)
	assert.Len(t, p.Templates(), 2)
	assert.Len(t, p.Variables(), 3)
	assert.Equal(t, "{?x #2 ?y . ?y #2 ?z}", p.String())

	_, known, err = pattern.Compile([][3]string{{"?x", "<urn:unknown>", "?y"}}, f.manager.Dictionary())
	require.NoError(t, err)
	assert.False(t, known)

	_, _, err = pattern.Compile([][3]string{{"?", "<urn:knows>", "?y"}}, f.manager.Dictionary())
	assert.True(t, errors.Is(err, pattern.ErrInvalidPattern))

	_, _, err = pattern.Compile(nil, f.manager.Dictionary())
	assert.True(t, errors.Is(err, pattern.ErrInvalidPattern))
}
