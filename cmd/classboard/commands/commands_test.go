package commands

import (
	"bytes"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestVersionCommand(t *testing.T) {
	Version = "1.2.3"
	cmd := NewVersionCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	assert.Equal(t, cmd.Execute(), nil)
	assert.Equal(t, out.String(), "classboard 1.2.3\n")
}

func TestBoardCommandTree(t *testing.T) {
	board := NewBoardCommand()

	var names []string
	for _, sub := range board.Commands() {
		names = append(names, sub.Name())
	}
	assert.Equal(t, names, []string{"add-note", "create", "list", "watch"})

	addNote, _, err := board.Find([]string{"add-note"})
	assert.Equal(t, err, nil)
	assert.NotEqual(t, addNote.Flags().Lookup("column"), nil)
	assert.NotEqual(t, addNote.Args(addNote, []string{"only-board"}), nil)
}

func TestMigrateSubcommands(t *testing.T) {
	var names []string
	for _, sub := range NewMigrateCommand().Commands() {
		names = append(names, sub.Name())
	}
	assert.Equal(t, names, []string{"down", "up", "version"})
}
