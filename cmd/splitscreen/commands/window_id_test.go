package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindowID(t *testing.T) {
	id, err := parseWindowID("0x3a00007")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x3a00007), id)

	id, err = parseWindowID("42")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)

	id, err = parseWindowID("")
	require.NoError(t, err)
	assert.Zero(t, id)

	for _, bad := range []string{"0", "-1", "window", "0x1ffffffff"} {
		_, err := parseWindowID(bad)
		assert.Error(t, err, bad)
	}
}
