package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultRegistry(t *testing.T) *Registry {
	t.Helper()
	env := newTestEnv(t, nil)
	return env.manager.Registry()
}

func TestRegistryResolvesDefaultHandlers(t *testing.T) {
	r := newDefaultRegistry(t)
	require.Len(t, r.Handlers(), 3)

	tests := []struct {
		from string
		kind Kind
	}{
		{from: testFromAddress, kind: KindSoftphone},
		{from: "acd-1@conference.example.com", kind: KindScreenShare},
		{from: "sharescreen-1@conference.example.com/res", kind: KindScreenView},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			h, err := r.Resolve(Proposal{ID: "1", FromAddress: tt.from})
			require.NoError(t, err)
			assert.Equal(t, tt.kind, h.Kind())
		})
	}
}

func TestRegistryAmbiguousMatch(t *testing.T) {
	host := newTestEnv(t, nil).manager
	always := func(Proposal) bool { return true }
	r := NewRegistry(
		stubFactory(KindSoftphone, always)(host),
		stubFactory(KindScreenView, always)(host),
	)

	_, err := r.Resolve(Proposal{ID: "1", FromAddress: testFromAddress})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatchingHandler)

	var sessErr *Error
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, []string{"softphone", "screenView"}, sessErr.Fields["kinds"])
}

func TestRegistryByKind(t *testing.T) {
	r := newDefaultRegistry(t)
	h, ok := r.ByKind(KindScreenShare)
	require.True(t, ok)
	assert.Equal(t, KindScreenShare, h.Kind())

	_, ok = r.ByKind("fax")
	assert.False(t, ok)

	r.Register(nil)
	assert.Len(t, r.Handlers(), 3)
}
