package continuous_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zefrenchwan/txl.git/continuous"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

var (
	people = contexts.MustParse("txl://example.org/people")
	family = contexts.MustParse("txl://example.org/people/family")
	places = contexts.MustParse("txl://example.org/places")
)

func day(d int) validity.Bound {
	return validity.At(time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC))
}

func window(t *testing.T, begin, end validity.Bound) validity.Set {
	t.Helper()
	track, err := validity.NewTrack(geometry.Universe(), begin, end)
	require.NoError(t, err)
	return validity.NewSet(track)
}

type fixture struct {
	manager *store.Manager
	engine  *continuous.Engine
}

func newFixture(t *testing.T, options continuous.Options) *fixture {
	t.Helper()
	manager := store.NewManager(store.Options{})
	t.Cleanup(manager.Close)
	options.Manager = manager
	engine := continuous.NewEngine(options)
	t.Cleanup(engine.Close)
	return &fixture{manager: manager, engine: engine}
}

func (f *fixture) id(t *testing.T, value string) terms.TermID {
	t.Helper()
	id, err := f.manager.Dictionary().Intern(terms.MustParse(value))
	require.NoError(t, err)
	return id
}

func (f *fixture) statement(t *testing.T, subject, predicate, object string) store.Statement {
	t.Helper()
	return store.Statement{Subject: f.id(t, subject), Predicate: f.id(t, predicate), Object: f.id(t, object)}
}

func (f *fixture) add(t *testing.T, name contexts.Name, subject, predicate, object string, begin, end validity.Bound) {
	t.Helper()
	insert := store.NewInsert(name, window(t, begin, end), f.statement(t, subject, predicate, object))
	_, err := f.manager.Apply(context.Background(), insert)
	require.NoError(t, err)
}

func (f *fixture) head() revisions.ID {
	return f.manager.Head().ID()
}

func TestSituationFollowsSources(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	f.add(t, people, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	f.add(t, people, "<urn:bob>", "<urn:knows>", "<urn:carol>", day(5), day(15))

	status, err := f.engine.Define(context.Background(), continuous.Definition{
		Context:   people,
		Where:     [][3]string{{"?a", "<urn:knows>", "?b"}},
		Construct: [][3]string{{"?a", "<urn:acquainted>", "?b"}},
	})

	require.NoError(t, err)
	output := contexts.MustParse("txl://example.org/people/#situations")
	assert.Equal(t, output, status.Output)
	assert.True(t, status.Satisfied)
	assert.Equal(t, 2, status.Statements)
	assert.Equal(t, revisions.ID(3), status.Evaluated)
	assert.Equal(t, revisions.ID(4), status.Written)
	assert.Equal(t, []contexts.Name{people}, status.Definition.Sources)

	content := f.manager.Head().Content()
	assert.Equal(t, 2, content.Len(output))
	value, found := content.Get(output, f.statement(t, "<urn:alice>", "<urn:acquainted>", "<urn:bob>"))
	require.True(t, found)
	assert.True(t, window(t, day(1), day(10)).Equal(value))

	// a new match is written at once
	f.add(t, people, "<urn:carol>", "<urn:knows>", "<urn:dave>", day(1), day(2))
	assert.Equal(t, revisions.ID(6), f.head())
	status, found = f.engine.Situation(people)
	require.True(t, found)
	assert.Equal(t, revisions.ID(5), status.Evaluated)
	assert.Equal(t, revisions.ID(6), status.Written)
	assert.Equal(t, 3, f.manager.Head().Content().Len(output))

	// same output: no revision
	f.add(t, people, "<urn:alice>", "<urn:likes>", "<urn:bob>", day(1), day(2))
	assert.Equal(t, revisions.ID(7), f.head())
	status, _ = f.engine.Situation(people)
	assert.Equal(t, revisions.ID(7), status.Evaluated)
	assert.Equal(t, revisions.ID(6), status.Written)

	// not a source
	f.add(t, places, "<urn:alice>", "<urn:knows>", "<urn:zoe>", day(1), day(2))
	status, _ = f.engine.Situation(people)
	assert.Equal(t, revisions.ID(7), status.Evaluated)

	// users cannot write outputs
	insert := store.NewInsert(output, window(t, day(1), day(2)), f.statement(t, "<urn:zoe>", "<urn:acquainted>", "<urn:bob>"))
	_, err = f.manager.Apply(context.Background(), insert)
	assert.True(t, errors.Is(err, store.ErrReservedContext))
}

func TestSituationUnionsMatchWindows(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	f.add(t, people, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(5))
	f.add(t, places, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(10), day(15))

	status, err := f.engine.Define(context.Background(), continuous.Definition{
		Context:   people,
		Sources:   []contexts.Name{people, places},
		Where:     [][3]string{{"?a", "<urn:knows>", "?b"}},
		Construct: [][3]string{{"?a", "<urn:met>", "?b"}},
		Window:    window(t, day(3), day(12)),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, status.Statements)
	value, found := f.manager.Head().Content().Get(status.Output, f.statement(t, "<urn:alice>", "<urn:met>", "<urn:bob>"))
	require.True(t, found)
	expected := window(t, day(3), day(5)).Union(window(t, day(10), day(12)))
	assert.True(t, expected.Equal(value))
}

func TestSituationBlankNodes(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	f.add(t, people, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	f.add(t, people, "<urn:bob>", "<urn:knows>", "<urn:carol>", day(1), day(10))

	definition := continuous.Definition{
		Context: people,
		Where:   [][3]string{{"?a", "<urn:knows>", "?b"}},
		Construct: [][3]string{
			{"_:meeting", "<urn:involves>", "?a"},
			{"_:meeting", "<urn:involves>", "?b"},
		},
	}

	status, err := f.engine.Define(context.Background(), definition)
	require.NoError(t, err)
	assert.Equal(t, 4, status.Statements)

	meetings := make(map[terms.TermID]int)
	f.manager.Head().Content().Scan(status.Output, store.Template{}, func(statement store.Statement, _ validity.Set) bool {
		meetings[statement.Subject]++
		return true
	})

	// one meeting per match, shared by its statements
	require.Len(t, meetings, 2)
	for subject, count := range meetings {
		assert.Equal(t, 2, count)
		term, found := f.manager.Dictionary().Resolve(subject)
		require.True(t, found)
		assert.Equal(t, terms.KindBlankNode, term.Kind())
	}

	// evaluating again gives the same nodes, so nothing is written
	head := f.head()
	again, err := f.engine.Define(context.Background(), definition)
	require.NoError(t, err)
	assert.Equal(t, head, f.head())
	assert.Equal(t, status.Written, again.Written)
}

func TestSituationRemoval(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	f.add(t, people, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))

	status, err := f.engine.Define(context.Background(), continuous.Definition{
		Context: people,
		Where:   [][3]string{{"?a", "<urn:knows>", "?b"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.manager.Head().Content().Len(status.Output))
	require.Len(t, f.engine.Situations(), 1)

	require.NoError(t, f.engine.Remove(context.Background(), people))
	assert.Equal(t, 0, f.manager.Head().Content().Len(status.Output))
	_, found := f.engine.Situation(people)
	assert.False(t, found)
	assert.Empty(t, f.engine.Situations())

	// no refresh once removed
	f.add(t, people, "<urn:bob>", "<urn:knows>", "<urn:carol>", day(1), day(10))
	assert.Equal(t, 0, f.manager.Head().Content().Len(status.Output))

	assert.True(t, errors.Is(f.engine.Remove(context.Background(), people), continuous.ErrUnknownSituation))
	assert.True(t, errors.Is(f.engine.Remove(context.Background(), places), continuous.ErrUnknownSituation))
}

func TestSituationUnsatisfied(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	// unknown predicate
	status, err := f.engine.Define(context.Background(), continuous.Definition{
		Context: people,
		Where:   [][3]string{{"?a", "<urn:hates>", "?b"}},
	})

	require.NoError(t, err)
	assert.False(t, status.Satisfied)
	assert.Equal(t, 0, status.Statements)
	assert.Equal(t, revisions.ID(0), status.Written)

	f.add(t, people, "<urn:alice>", "<urn:hates>", "<urn:bob>", day(1), day(10))
	status, _ = f.engine.Situation(people)
	assert.True(t, status.Satisfied)
	assert.Equal(t, 1, status.Statements)
}

func TestInvalidDefinitions(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	where := [][3]string{{"?a", "<urn:knows>", "?b"}}
	output := contexts.MustParse("txl://example.org/people/#situations")

	definitions := map[string]continuous.Definition{
		"no context":       {Where: where},
		"reserved context": {Context: output, Where: where},
		"reserved source":  {Context: people, Sources: []contexts.Name{output}, Where: where},
		"no where":         {Context: people},
		"bad where":        {Context: people, Where: [][3]string{{"?a", "knows", "?b"}}},
		"unknown variable": {Context: people, Where: where, Construct: [][3]string{{"?a", "<urn:knows>", "?c"}}},
		"bad construct":    {Context: people, Where: where, Construct: [][3]string{{"?a", "<urn:knows", "?b"}}},
	}

	for name, definition := range definitions {
		_, err := f.engine.Define(context.Background(), definition)
		assert.True(t, errors.Is(err, continuous.ErrInvalidDefinition), name)
	}

	assert.Empty(t, f.engine.Situations())
}

func TestRegisteredQueryKeepsResultSets(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	f.add(t, people, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))

	var received []revisions.ID
	handle, err := f.engine.Register(context.Background(), continuous.Query{
		Name:      "acquaintances",
		Templates: [][3]string{{"?a", "<urn:knows>", "?b"}},
		Contexts:  []contexts.Name{people},
	}, func(_ *continuous.Handle, result continuous.ResultSet) {
		received = append(received, result.Revision)
	})

	require.NoError(t, err)
	assert.Equal(t, revisions.ID(2), handle.FirstEvaluation())
	latest, found := handle.Latest()
	require.True(t, found)
	assert.True(t, latest.Found)
	require.Len(t, latest.Matches, 1)
	assert.Equal(t, f.id(t, "<urn:alice>"), latest.Matches[0].Binding.Names(latest.Pattern)["a"])

	f.add(t, people, "<urn:bob>", "<urn:knows>", "<urn:carol>", day(1), day(10))
	f.add(t, places, "<urn:bob>", "<urn:knows>", "<urn:dave>", day(1), day(10))
	assert.Equal(t, revisions.ID(3), handle.LastEvaluation())
	assert.Equal(t, []revisions.ID{2, 3}, received)

	result, found := handle.ResultSetFor(4)
	require.True(t, found)
	assert.Equal(t, revisions.ID(3), result.Revision)
	assert.Len(t, result.Matches, 2)

	result, found = handle.ResultSetFor(2)
	require.True(t, found)
	assert.Len(t, result.Matches, 1)

	_, found = handle.ResultSetFor(1)
	assert.False(t, found)

	_, err = f.engine.Register(context.Background(), handle.Query(), nil)
	assert.True(t, errors.Is(err, continuous.ErrQueryExists))

	registered, found := f.engine.Query("acquaintances")
	require.True(t, found)
	assert.Same(t, handle, registered)
	assert.Len(t, f.engine.Queries(), 1)

	require.NoError(t, f.engine.Unregister("acquaintances"))
	f.add(t, people, "<urn:carol>", "<urn:knows>", "<urn:dave>", day(1), day(10))
	assert.Equal(t, revisions.ID(3), handle.LastEvaluation())
	assert.Empty(t, f.engine.Queries())
	assert.True(t, errors.Is(f.engine.Unregister("acquaintances"), continuous.ErrUnknownQuery))
}

func TestRegisteredQueryHistory(t *testing.T) {
	f := newFixture(t, continuous.Options{History: 2})
	f.add(t, people, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))

	handle, err := f.engine.Register(context.Background(), continuous.Query{
		Name:      "history",
		Templates: [][3]string{{"?a", "<urn:knows>", "?b"}},
		Contexts:  []contexts.Name{people},
	}, nil)

	require.NoError(t, err)
	f.add(t, people, "<urn:bob>", "<urn:knows>", "<urn:carol>", day(1), day(10))
	f.add(t, people, "<urn:carol>", "<urn:knows>", "<urn:dave>", day(1), day(10))

	assert.Equal(t, revisions.ID(2), handle.FirstEvaluation())
	assert.Equal(t, revisions.ID(4), handle.LastEvaluation())
	_, found := handle.ResultSetFor(2)
	assert.False(t, found)
	result, found := handle.ResultSetFor(3)
	require.True(t, found)
	assert.Len(t, result.Matches, 2)
}

func TestRegisteredQueryWithUnknownTerms(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	f.add(t, family, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))

	handle, err := f.engine.Register(context.Background(), continuous.Query{
		Name:        "zoe",
		Templates:   [][3]string{{"?a", "<urn:knows>", "?b"}},
		Binding:     map[string]string{"a": "<urn:zoe>"},
		Contexts:    []contexts.Name{people},
		Descendants: true,
	}, nil)

	require.NoError(t, err)
	latest, _ := handle.Latest()
	assert.False(t, latest.Found)
	assert.Empty(t, latest.Matches)

	// descendants changes are read too
	f.add(t, family, "<urn:zoe>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	latest, _ = handle.Latest()
	assert.Equal(t, f.head(), latest.Revision)
	assert.True(t, latest.Found)
	assert.Len(t, latest.Matches, 1)
}

func TestRegisteredQueryOnSituationOutput(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	status, err := f.engine.Define(context.Background(), continuous.Definition{
		Context:   people,
		Where:     [][3]string{{"?a", "<urn:knows>", "?b"}},
		Construct: [][3]string{{"?b", "<urn:knownBy>", "?a"}},
	})

	require.NoError(t, err)
	handle, err := f.engine.Register(context.Background(), continuous.Query{
		Name:      "known",
		Templates: [][3]string{{"?b", "<urn:knownBy>", "?a"}},
		Contexts:  []contexts.Name{status.Output},
	}, nil)

	require.NoError(t, err)
	f.add(t, people, "<urn:alice>", "<urn:knows>", "<urn:bob>", day(1), day(10))
	latest, _ := handle.Latest()
	assert.Equal(t, f.head(), latest.Revision)
	assert.True(t, latest.Found)
}

func TestInvalidQueries(t *testing.T) {
	f := newFixture(t, continuous.Options{})
	templates := [][3]string{{"?a", "<urn:knows>", "?b"}}
	queries := map[string]continuous.Query{
		"bad name":     {Name: "bad name", Templates: templates, Contexts: []contexts.Name{people}},
		"no context":   {Name: "nocontext", Templates: templates},
		"zero context": {Name: "zero", Templates: templates, Contexts: []contexts.Name{{}}},
		"no template":  {Name: "notemplate", Contexts: []contexts.Name{people}},
		"bad binding":  {Name: "binding", Templates: templates, Contexts: []contexts.Name{people}, Binding: map[string]string{"c": "<urn:alice>"}},
	}

	for name, query := range queries {
		_, err := f.engine.Register(context.Background(), query, nil)
		assert.True(t, errors.Is(err, continuous.ErrInvalidQuery), name)
	}

	assert.Empty(t, f.engine.Queries())
}
