package console

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	def := killProcessDefinition()
	require.NoError(t, reg.Register(def))

	got, err := reg.Lookup("kill-process")
	require.NoError(t, err)
	assert.Same(t, def, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryDuplicateNameLeavesFirst(t *testing.T) {
	reg := NewRegistry()
	first := killProcessDefinition()
	second := killProcessDefinition()
	second.About = "imposter"

	require.NoError(t, reg.Register(first))
	err := reg.Register(second)

	var dup *DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "kill-process", dup.Name)
	assert.ErrorIs(t, err, ErrDuplicateName)

	got, err := reg.Lookup("kill-process")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryLookupIsExact(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(killProcessDefinition()))

	for _, name := range []string{"kill", "Kill-Process", "kill-process ", ""} {
		_, err := reg.Lookup(name)
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf), "lookup %q", name)
		assert.Equal(t, name, nf.Name)
	}
}

func TestRegistryRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  *CommandDefinition
	}{
		{"nil", nil},
		{"empty name", &CommandDefinition{Renderer: noopRenderer}},
		{"spaced name", &CommandDefinition{Name: "kill process", Renderer: noopRenderer}},
		{"no renderer", &CommandDefinition{Name: "isolate"}},
		{"duplicate arg", &CommandDefinition{
			Name:     "isolate",
			Renderer: noopRenderer,
			Args:     []ArgDefinition{{Name: "comment"}, {Name: "comment"}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			assert.ErrorIs(t, reg.Register(tc.def), ErrInvalidDefinition)
			assert.Zero(t, reg.Len())
		})
	}
}

func TestRegistryOrderAndHidden(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"status", "isolate", "release"} {
		require.NoError(t, reg.Register(&CommandDefinition{Name: name, Renderer: noopRenderer}))
	}
	require.NoError(t, reg.Register(&CommandDefinition{Name: "debug-dump", Renderer: noopRenderer, Hidden: true}))

	var names []string
	for _, def := range reg.Commands(false) {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"status", "isolate", "release"}, names)
	assert.Len(t, reg.Commands(true), 4)
	assert.Equal(t, []string{"isolate", "release", "status"}, reg.Names())
}
