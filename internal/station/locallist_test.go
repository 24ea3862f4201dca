package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
)

func TestLocalList_ReplaceFull(t *testing.T) {
	l := NewLocalList()
	assert.Equal(t, 0, l.Version())

	err := l.ReplaceFull(3, map[string]LocalListEntry{
		"TAG1": {Status: domain.AuthAccepted},
		"TAG2": {Status: domain.AuthBlocked},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, l.Version())
	assert.Equal(t, 2, l.Len())

	status, ok := l.Lookup("TAG2")
	require.True(t, ok)
	assert.Equal(t, domain.AuthBlocked, status)

	// A full update discards entries absent from the new list.
	require.NoError(t, l.ReplaceFull(4, map[string]LocalListEntry{
		"TAG3": {Status: domain.AuthAccepted},
	}))
	_, ok = l.Lookup("TAG1")
	assert.False(t, ok)
	assert.Equal(t, 1, l.Len())
}

func TestLocalList_VersionMustIncrease(t *testing.T) {
	l := NewLocalList()
	require.NoError(t, l.ReplaceFull(5, nil))

	assert.ErrorIs(t, l.ReplaceFull(5, nil), ErrVersionMismatch)
	assert.ErrorIs(t, l.ReplaceFull(4, nil), ErrVersionMismatch)
	assert.ErrorIs(t, l.ApplyDifferential(5, nil), ErrVersionMismatch)
	assert.Equal(t, 5, l.Version())
}

func TestLocalList_Differential(t *testing.T) {
	l := NewLocalList()
	require.NoError(t, l.ReplaceFull(1, map[string]LocalListEntry{
		"TAG1": {Status: domain.AuthAccepted},
		"TAG2": {Status: domain.AuthAccepted},
	}))

	// Empty status removes, the rest upserts.
	require.NoError(t, l.ApplyDifferential(2, map[string]LocalListEntry{
		"TAG1": {},
		"TAG2": {Status: domain.AuthBlocked},
		"TAG3": {Status: domain.AuthAccepted},
	}))
	assert.Equal(t, 2, l.Version())

	_, ok := l.Lookup("TAG1")
	assert.False(t, ok)

	status, ok := l.Lookup("TAG2")
	require.True(t, ok)
	assert.Equal(t, domain.AuthBlocked, status)

	status, ok = l.Lookup("TAG3")
	require.True(t, ok)
	assert.Equal(t, domain.AuthAccepted, status)
}

func TestLocalList_ExpiredEntry(t *testing.T) {
	l := NewLocalList()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, l.ReplaceFull(1, map[string]LocalListEntry{
		"TAG1": {Status: domain.AuthAccepted, ExpiresAt: &past},
	}))

	status, ok := l.Lookup("TAG1")
	require.True(t, ok)
	assert.Equal(t, domain.AuthExpired, status)
}
