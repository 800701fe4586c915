package obs

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	return &Logger{Logger: log.New(buf, "[writer] ", 0)}
}

func TestLoggerErrorfPrefixesSeverity(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Errorf("flush failed: %v", "disk full")

	assert.True(t, strings.Contains(buf.String(), "[writer] "))
	assert.True(t, strings.Contains(buf.String(), "ERROR: flush failed: disk full"))
}

func TestLoggerWarnfPrefixesSeverity(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Warnf("retrying %s", "compaction")

	assert.True(t, strings.Contains(buf.String(), "WARN: retrying compaction"))
}

func TestNewSetsComponentPrefix(t *testing.T) {
	l := New("compactor")
	assert.Equal(t, "[compactor] ", l.Prefix())
}
