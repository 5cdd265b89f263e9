package provider

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCompliance returns a reorderer that promotes C and leaves the
// process FIPS flag alone.
func newTestCompliance(r *Registry, opts ...ComplianceOption) (*Compliance, *int) {
	forced := 0
	opts = append([]ComplianceOption{WithComplianceProvider("C"), WithAnchor("Anchor")}, opts...)
	c := NewCompliance(r, opts...)
	c.forceFlag = func() { forced++ }
	return c, &forced
}

// recordingList counts mutations and can fail an insert.
type recordingList struct {
	List
	mu         sync.Mutex
	mutations  int
	failInsert string
}

func (l *recordingList) Insert(p Provider, pos int) (int, error) {
	l.mu.Lock()
	l.mutations++
	fail := l.failInsert != "" && foldName(p.Name()) == foldName(l.failInsert)
	l.mu.Unlock()

	if fail {
		return 0, errors.New("insert rejected")
	}
	return l.List.Insert(p, pos)
}

func (l *recordingList) Remove(name string) error {
	l.mu.Lock()
	l.mutations++
	l.mu.Unlock()
	return l.List.Remove(name)
}

func (l *recordingList) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutations
}

func TestCompliance_InstallsMissingProviderFirst(t *testing.T) {
	t.Parallel()

	c := newFake("C")
	r := NewRegistry(
		WithList(NewList(newFake("A"), newFake("B"), newFake("D"))),
		WithConstructors(fakeConstructors(c)),
	)
	comp, forced := newTestCompliance(r)

	require.NoError(t, comp.Enable(context.Background()))

	assert.Equal(t, []string{"C", "A", "B", "D"}, providerNames(r.List().Providers()))
	assert.True(t, comp.Initialized())
	assert.Equal(t, 1, *forced)
}

func TestCompliance_MovesInstalledProviderFirst(t *testing.T) {
	t.Parallel()

	c := newFake("C")
	r := NewRegistry(WithList(NewList(newFake("A"), newFake("B"), c, newFake("D"))))
	comp, _ := newTestCompliance(r)

	require.NoError(t, comp.Enable(context.Background()))

	providers := r.List().Providers()
	assert.Equal(t, []string{"C", "A", "B", "D"}, providerNames(providers))
	assert.Same(t, c, providers[0])
}

func TestCompliance_AnchorTakesFirstSlot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		initial []string
		want    []string
	}{
		{
			name:    "compliance installed after anchor",
			initial: []string{"A", "Anchor", "B", "C"},
			want:    []string{"Anchor", "C", "A", "B"},
		},
		{
			name:    "compliance missing",
			initial: []string{"A", "B", "Anchor"},
			want:    []string{"Anchor", "C", "A", "B"},
		},
		{
			name:    "anchor already first",
			initial: []string{"Anchor", "A", "C"},
			want:    []string{"Anchor", "C", "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			providers := make([]Provider, 0, len(tt.initial))
			for _, name := range tt.initial {
				providers = append(providers, newFake(name))
			}
			r := NewRegistry(
				WithList(NewList(providers...)),
				WithConstructors(fakeConstructors(newFake("C"))),
			)
			comp, _ := newTestCompliance(r)

			require.NoError(t, comp.Enable(context.Background()))
			assert.Equal(t, tt.want, providerNames(r.List().Providers()))
		})
	}
}

func TestCompliance_AlreadyFirstIsUnchanged(t *testing.T) {
	t.Parallel()

	list := &recordingList{List: NewList(newFake("C"), newFake("A"), newFake("B"))}
	r := NewRegistry(WithList(list))
	comp, _ := newTestCompliance(r)

	require.NoError(t, comp.Enable(context.Background()))
	assert.Equal(t, []string{"C", "A", "B"}, providerNames(list.Providers()))
	assert.Zero(t, list.count())
	assert.True(t, comp.Initialized())
}

func TestCompliance_SecondEnableDoesNothing(t *testing.T) {
	t.Parallel()

	list := &recordingList{List: NewList(newFake("A"), newFake("C"))}
	r := NewRegistry(WithList(list))
	comp, forced := newTestCompliance(r)

	require.NoError(t, comp.Enable(context.Background()))
	mutations := list.count()
	require.Positive(t, mutations)

	require.NoError(t, comp.Enable(context.Background()))
	assert.Equal(t, mutations, list.count())
	assert.Equal(t, 1, *forced)
	assert.Equal(t, []string{"C", "A"}, providerNames(list.Providers()))
}

func TestCompliance_EmptyListIsNoop(t *testing.T) {
	t.Parallel()

	list := &recordingList{List: NewList()}
	r := NewRegistry(WithList(list), WithConstructors(fakeConstructors(newFake("C"))))
	comp, _ := newTestCompliance(r)

	require.NoError(t, comp.Enable(context.Background()))
	assert.Zero(t, list.count())
	assert.Empty(t, list.Providers())
	assert.False(t, comp.Initialized())

	// Once providers exist the reorder happens.
	require.NoError(t, r.Register(newFake("A")))
	require.NoError(t, comp.Enable(context.Background()))
	assert.Equal(t, []string{"C", "A"}, providerNames(list.Providers()))
	assert.True(t, comp.Initialized())
}

func TestCompliance_ConcurrentEnableReordersOnce(t *testing.T) {
	t.Parallel()

	list := &recordingList{List: NewList(newFake("A"), newFake("B"), newFake("C"))}
	r := NewRegistry(WithList(list))
	comp := NewCompliance(r, WithComplianceProvider("C"), WithAnchor("Anchor"))
	comp.forceFlag = func() {}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, comp.Enable(context.Background()))
		}()
	}
	wg.Wait()

	// Three removes and three inserts, once.
	assert.Equal(t, 6, list.count())
	assert.Equal(t, []string{"C", "A", "B"}, providerNames(list.Providers()))
}

func TestCompliance_FailedInsertIsFatal(t *testing.T) {
	t.Parallel()

	list := &recordingList{List: NewList(newFake("A"), newFake("B"), newFake("C")), failInsert: "B"}
	r := NewRegistry(WithList(list))
	comp, _ := newTestCompliance(r)

	err := comp.Enable(context.Background())
	require.Error(t, err)
	assert.True(t, IsFatalReorder(err))

	var fatal *FatalReorderError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "insert", fatal.Stage)
	assert.Equal(t, "B", fatal.Provider)
	assert.Equal(t, []string{"C", "A"}, fatal.Installed)
	assert.False(t, comp.Initialized())
}

func TestCompliance_MissingConstructorIsFatal(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithList(NewList(newFake("A"))), WithConstructors(nil))
	comp, _ := newTestCompliance(r)

	err := comp.Enable(context.Background())
	require.Error(t, err)

	var fatal *FatalReorderError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "instantiate", fatal.Stage)
	assert.ErrorIs(t, err, ErrNoConstructor)
	assert.Equal(t, []string{"A"}, providerNames(r.List().Providers()))
}

func TestCompliance_DefaultsUseBuiltins(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithList(NewList(NewGoTLS(), NewBase())))
	comp := NewCompliance(r)
	comp.forceFlag = func() {}

	require.NoError(t, comp.Enable(context.Background()))
	assert.Equal(t, []string{NameBase, NameGoFIPS, NameGoTLS}, providerNames(r.List().Providers()))
}

func TestPinOrder(t *testing.T) {
	t.Parallel()

	a, b, c, d := newFake("A"), newFake("B"), newFake("C"), newFake("D")

	order := pinOrder([]Provider{a, b, c, d}, []Provider{c})
	assert.Equal(t, []string{"C", "A", "B", "D"}, providerNames(order))

	order = pinOrder([]Provider{a, b, c, d}, []Provider{d, b})
	assert.Equal(t, []string{"D", "B", "A", "C"}, providerNames(order))
}

func TestFatalReorderError(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	err := &FatalReorderError{Stage: "remove", Provider: "A", Cause: cause}
	assert.Equal(t, "provider reorder failed at remove of A: cause", err.Error())
	assert.ErrorIs(t, err, cause)

	err = &FatalReorderError{Stage: "instantiate", Cause: cause}
	assert.Equal(t, "provider reorder failed at instantiate: cause", err.Error())

	assert.False(t, IsFatalReorder(cause))
}
