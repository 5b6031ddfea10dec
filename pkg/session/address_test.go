package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		raw      string
		user     string
		host     string
		resource string
		acd      bool
		view     bool
	}{
		{raw: "+15558675309@gjoll.mypurecloud.com/instance-id", user: "+15558675309", host: "gjoll.mypurecloud.com", resource: "instance-id"},
		{raw: "agent@example.com", user: "agent", host: "example.com"},
		{raw: "acd-12ab@conference.example.com/x/y", user: "acd-12ab", host: "conference.example.com", resource: "x/y", acd: true},
		{raw: "sharescreen-7@conference.example.com", user: "sharescreen-7", host: "conference.example.com", view: true},
		{raw: "plainuser", user: "plainuser"},
		{raw: "plainuser/res", user: "plainuser", resource: "res"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			addr, err := ParseAddress(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.user, addr.User)
			assert.Equal(t, tt.user, addr.String())
			assert.Equal(t, tt.host, addr.Host)
			assert.Equal(t, tt.resource, addr.Resource)
			assert.Equal(t, tt.acd, addr.IsAcd())
			assert.Equal(t, tt.view, addr.IsScreenView())
			assert.Equal(t, tt.raw, addr.Raw)
		})
	}
}

func TestParseAddressEmpty(t *testing.T) {
	_, err := ParseAddress("   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAddressBare(t *testing.T) {
	addr, err := ParseAddress("+15558675309@gjoll.mypurecloud.com/instance-id")
	require.NoError(t, err)
	assert.Equal(t, "+15558675309@gjoll.mypurecloud.com", addr.Bare())

	addr, err = ParseAddress("user")
	require.NoError(t, err)
	assert.Equal(t, "user", addr.Bare())
}
