package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputLevels(t *testing.T) {
	var w bytes.Buffer
	out := NewOutputChannel(&w)

	out.Info("info")
	out.Warn("careful")
	out.Debug("hidden")
	out.SetLevel(OutputQuiet)
	out.Info("suppressed")
	out.Error("failed")
	out.SetLevel(OutputDebug)
	out.Debug("shown")

	assert.Equal(t, "info\nWARNING: careful\nERROR: failed\nDEBUG: shown\n", w.String())
	assert.Equal(t, w.String(), out.Captured())
}

func TestOutputTableAndJSON(t *testing.T) {
	var w bytes.Buffer
	out := NewOutputChannel(&w).WithPrefix("[isolate] ")

	out.WriteTable([]string{"ID", "Status"}, [][]string{{"a1", "success"}, {"b22", "pending"}})
	out.WriteJSON(map[string]int{"pid": 42})

	want := "[isolate] | ID  | Status  |\n" +
		"[isolate]   a1    success\n" +
		"[isolate]   b22   pending\n" +
		"[isolate] {\n  \"pid\": 42\n}\n"
	assert.Equal(t, want, w.String())
}
