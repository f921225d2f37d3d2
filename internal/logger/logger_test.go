package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func restore() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestDebug_SuppressedWhenNotVerbose(t *testing.T) {
	defer restore()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("hidden %d", 1)

	assert.Empty(t, buf.String())
}

func TestDebug_PrintedWhenVerbose(t *testing.T) {
	defer restore()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("visible %s", "msg")

	assert.Contains(t, buf.String(), "[DEBUG] visible msg")
}

func TestError_AlwaysPrinted(t *testing.T) {
	defer restore()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Error("boom: %v", "cause")

	assert.Contains(t, buf.String(), "[ERROR] boom: cause")
}

func TestVerboseToggle(t *testing.T) {
	defer restore()

	SetVerbose(true)
	assert.True(t, IsVerbose())
	SetVerbose(false)
	assert.False(t, IsVerbose())
}
