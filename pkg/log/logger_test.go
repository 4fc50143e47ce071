package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, format Format, verbose bool) (*Logger, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	var out, errOut bytes.Buffer
	l, err := New(Config{Format: format, Verbose: verbose, Out: &out, ErrOut: &errOut})
	require.NoError(t, err)
	return l, &out, &errOut
}

func TestConsoleLogger(t *testing.T) {
	l, out, errOut := newTestLogger(t, FormatConsole, false)

	l.Step("Installing %s", "operator")
	l.Info("waiting")
	l.Success("done")
	l.Warning("slow")
	l.Error("broken: %d", 1)
	l.Debug("hidden")

	assert.Equal(t, "==> Installing operator\nwaiting\n✓ done\n", out.String())
	assert.Equal(t, "WARNING: slow\nERROR: broken: 1\n", errOut.String())
}

func TestConsoleLoggerVerbose(t *testing.T) {
	l, out, _ := newTestLogger(t, FormatConsole, true)

	l.Debug("visible %s", "now")

	assert.Equal(t, "visible now\n", out.String())
	assert.True(t, l.Verbose())
}

func TestJSONLogger(t *testing.T) {
	l, out, errOut := newTestLogger(t, FormatJSON, false)

	l.Step("phase")
	l.Warning("careful")
	l.Sync()

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &line))
	assert.Equal(t, "phase", line["msg"])
	assert.Equal(t, "step", line["kind"])
	assert.Equal(t, "info", line["level"])

	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(errOut.String())), &line))
	assert.Equal(t, "warn", line["level"])
	assert.True(t, l.JSON())
}

func TestInvalidFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "eyJh****", Mask("eyJhbGciOiJSUzI1NiJ9"))
}
