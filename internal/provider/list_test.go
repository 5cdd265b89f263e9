package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_InsertAndLookup(t *testing.T) {
	t.Parallel()

	l := NewList(newFake("A"), newFake("B"))

	pos, err := l.Insert(newFake("C"), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = l.Insert(newFake("D"), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, pos)

	pos, err = l.Insert(newFake("E"), 99)
	require.NoError(t, err)
	assert.Equal(t, 5, pos)

	assert.Equal(t, []string{"C", "A", "B", "D", "E"}, providerNames(l.Providers()))

	p, pos, ok := l.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "B", p.Name())
	assert.Equal(t, 3, pos)

	_, _, ok = l.Lookup("missing")
	assert.False(t, ok)
}

func TestList_CaseInsensitiveIdentity(t *testing.T) {
	t.Parallel()

	l := NewList(newFake("GoTLS"))

	_, err := l.Insert(newFake("GOTLS"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateProvider)

	_, _, ok := l.Lookup("gotls")
	assert.True(t, ok)
}

func TestList_Remove(t *testing.T) {
	t.Parallel()

	l := NewList(newFake("A"), newFake("B"))

	require.NoError(t, l.Remove("a"))
	assert.Equal(t, []string{"B"}, providerNames(l.Providers()))

	err := l.Remove("A")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestList_ProvidersIsSnapshot(t *testing.T) {
	t.Parallel()

	l := NewList(newFake("A"))
	snapshot := l.Providers()

	_, err := l.Insert(newFake("B"), 1)
	require.NoError(t, err)

	assert.Len(t, snapshot, 1)
	assert.Len(t, l.Providers(), 2)
}
