package tui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"quit", Command{Name: "quit"}},
		{"  Direct 4 ", Command{Name: "direct", Args: "4"}},
		{"search hello world", Command{Name: "search", Args: "hello world"}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ParseCommand(tt.in), tt.in)
	}
}

func TestCommandUserID(t *testing.T) {
	id, err := ParseCommand("direct 12").UserID()
	require.NoError(t, err)
	require.EqualValues(t, 12, id)

	for _, in := range []string{"direct", "direct abc", "direct -1", "direct 0"} {
		_, err := ParseCommand(in).UserID()
		require.Error(t, err, in)
	}
}

func TestCommandGroup(t *testing.T) {
	ids, name, err := ParseCommand("group 2,3, 4 weekend plans").Group()
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, ids)
	require.Equal(t, "4 weekend plans", name)

	ids, name, err = ParseCommand("group 2,3,4").Group()
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4}, ids)
	require.Empty(t, name)

	// An empty id list still parses.
	ids, name, err = ParseCommand("group , solo").Group()
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Equal(t, "solo", name)

	_, _, err = ParseCommand("group").Group()
	require.Error(t, err)
	_, _, err = ParseCommand("group 2,x").Group()
	require.Error(t, err)
}
