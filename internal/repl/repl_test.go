package repl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridcalc/internal/engine"
)

func newSession(out *bytes.Buffer) *Session {
	return &Session{Engine: engine.New(engine.Config{}), Out: out}
}

func TestExecSetAndRecalc(t *testing.T) {
	var out bytes.Buffer
	s := newSession(&out)
	require.NoError(t, s.Exec("A1=2"))
	require.NoError(t, s.Exec("A2==A1*3"))
	require.NoError(t, s.Exec("recalc"))
	assert.Equal(t, "Sheet1!A2 = 6\n", out.String())
}

func TestExecPrint(t *testing.T) {
	var out bytes.Buffer
	s := newSession(&out)
	require.NoError(t, s.Exec("A1=hello"))
	require.NoError(t, s.Exec("recalc"))
	out.Reset()
	require.NoError(t, s.Exec("print A1"))
	assert.Equal(t, "hello\n", out.String())
}

func TestExecSheet(t *testing.T) {
	var out bytes.Buffer
	s := newSession(&out)
	require.NoError(t, s.Exec("sheet Data"))
	require.NoError(t, s.Exec("sheet Data"))
	require.NoError(t, s.Exec("Data!A1=7"))
	require.NoError(t, s.Exec("A1==Data!A1+1"))
	require.NoError(t, s.Exec("recalc"))
	assert.Contains(t, out.String(), "Sheet1!A1 = 8")
}

func TestExecBadStatement(t *testing.T) {
	var out bytes.Buffer
	err := newSession(&out).Exec("frobnicate")
	require.Error(t, err)
}

func TestSplitTarget(t *testing.T) {
	for _, tc := range []struct {
		in, sheet, ref string
	}{
		{"A1", "", "A1"},
		{"Sheet2!B3", "Sheet2", "B3"},
		{"'My Data'!C1", "My Data", "C1"},
	} {
		sheet, ref := splitTarget(tc.in)
		assert.Equal(t, tc.sheet, sheet, tc.in)
		assert.Equal(t, tc.ref, ref, tc.in)
	}
}

func TestStartLoop(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("A1=1\nA2==A1+1\nrecalc\nbogus line\nexit\n")
	require.NoError(t, Start(engine.New(engine.Config{}), in, &out))
	assert.Contains(t, out.String(), "Sheet1!A2 = 2")
	assert.Contains(t, out.String(), "error:")
}
