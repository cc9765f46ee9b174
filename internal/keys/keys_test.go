package keys

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyMap_KeyAssignments(t *testing.T) {
	km := DefaultKeyMap()
	tests := []struct {
		name     string
		binding  key.Binding
		expected []string
	}{
		{name: "Up", binding: km.Up, expected: []string{"k", "up"}},
		{name: "Down", binding: km.Down, expected: []string{"j", "down"}},
		{name: "Top", binding: km.Top, expected: []string{"g", "home"}},
		{name: "Bottom", binding: km.Bottom, expected: []string{"G", "end"}},
		{name: "Refresh", binding: km.Refresh, expected: []string{"r"}},
		{name: "Fetch", binding: km.Fetch, expected: []string{"f"}},
		{name: "Pull", binding: km.Pull, expected: []string{"p"}},
		{name: "Push", binding: km.Push, expected: []string{"P"}},
		{name: "Quit", binding: km.Quit, expected: []string{"q", "ctrl+c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.binding.Keys())
		})
	}
}

func TestDefaultKeyMap_NoDuplicateKeys(t *testing.T) {
	km := DefaultKeyMap()
	seen := make(map[string]string)
	for _, group := range km.FullHelp() {
		for _, b := range group {
			for _, k := range b.Keys() {
				prev, dup := seen[k]
				require.False(t, dup, "key %q bound to both %q and %q", k, prev, b.Help().Desc)
				seen[k] = b.Help().Desc
			}
		}
	}
}

func TestDefaultKeyMap_HelpText(t *testing.T) {
	km := DefaultKeyMap()
	for _, group := range km.FullHelp() {
		for _, b := range group {
			require.NotEmpty(t, b.Help().Key)
			require.NotEmpty(t, b.Help().Desc)
		}
	}
	require.Equal(t, []key.Binding{km.Help, km.Quit}, km.ShortHelp())
}

func TestDefaultPushKeyMap(t *testing.T) {
	km := DefaultPushKeyMap()
	require.Equal(t, []string{"F"}, km.Force.Keys())
	require.Equal(t, []string{"esc", "n"}, km.Cancel.Keys())
}
