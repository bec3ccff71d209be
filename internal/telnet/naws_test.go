package telnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWindowSize(t *testing.T) {
	cols, rows, ok := ParseWindowSize([]byte{0, 80, 0, 24})
	require.True(t, ok)
	require.Equal(t, 80, cols)
	require.Equal(t, 24, rows)

	cols, rows, ok = ParseWindowSize([]byte{1, 44, 0, 255})
	require.True(t, ok)
	require.Equal(t, 300, cols)
	require.Equal(t, 255, rows)

	_, _, ok = ParseWindowSize([]byte{0, 80})
	require.False(t, ok)
}
