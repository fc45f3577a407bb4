package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScript(t *testing.T) {
	script := `
# totals
A1=1
A2=2
A3==SUM(A1:A2)
recalc
A1=10
recalc
`
	var out bytes.Buffer
	err := runScript(newEngine(), strings.NewReader(script), &out)
	require.NoError(t, err)

	// Literal writes display immediately and do not report; only the
	// recomputed formula shows up in each recalc.
	want := strings.Join([]string{
		"Sheet1!A3 = 3",
		"Sheet1!A3 = 12",
		"",
	}, "\n")
	assert.Equal(t, want, out.String())
}

func TestRunScriptSheets(t *testing.T) {
	script := `
sheet Data
Data!A1=5
A1==Data!A1*2
recalc
`
	var out bytes.Buffer
	err := runScript(newEngine(), strings.NewReader(script), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Sheet1!A1 = 10")
}

func TestRunScriptClear(t *testing.T) {
	script := `
A1=4
A2==A1+1
recalc
A1=
recalc
`
	var out bytes.Buffer
	err := runScript(newEngine(), strings.NewReader(script), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "Sheet1!A1 = ", lines[len(lines)-2])
	assert.Equal(t, "Sheet1!A2 = 1", lines[len(lines)-1])
}

func TestRunScriptBadStatement(t *testing.T) {
	err := runScript(newEngine(), strings.NewReader("recalc now please"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}
