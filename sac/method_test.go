package sac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"ransac", "lmeds", "msac", "prosac", "promeds"} {
		m, err := ParseMethod(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, m.String())
		assert.True(t, m.Valid())
	}

	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMethod, m)

	_, err = ParseMethod("ransack")
	require.Error(t, err)
}

func TestMethodProperties(t *testing.T) {
	t.Parallel()

	assert.True(t, PROSAC.Progressive())
	assert.True(t, PROMedS.Progressive())
	assert.False(t, RANSAC.Progressive())
	assert.False(t, LMedS.Progressive())
	assert.False(t, MSAC.Progressive())

	assert.True(t, LMedS.medianScored())
	assert.True(t, PROMedS.medianScored())
	assert.False(t, RANSAC.medianScored())
	assert.False(t, MSAC.medianScored())
	assert.False(t, PROSAC.medianScored())

	assert.False(t, Method("ransack").Valid())
	assert.False(t, Method("").Valid())
}
