package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_WritesAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", &buf)
	l.Debug("hello debug")
	l.Info("hello info")
	out := buf.String()
	assert.Contains(t, out, "hello debug")
	assert.Contains(t, out, "hello info")
}

func TestNew_DefaultsToInfoOnUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("not-a-level", &buf)
	l.Debug("should not appear")
	l.Info("should appear")
	out := buf.String()
	assert.False(t, strings.Contains(out, "should not appear"))
	assert.True(t, strings.Contains(out, "should appear"))
}

func TestWithFields_AttachesStructuredContext(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", &buf)
	l.WithFields(map[string]interface{}{"address": "a:7687"}).Info("connected")
	assert.Contains(t, buf.String(), `address="a:7687"`)
}

func TestNoop_NeverPanics(t *testing.T) {
	var l Logger = Noop{}
	l.Debug("x")
	l.WithField("a", 1).Info("y")
	l.WithError(assertError()).Error("z")
}

func assertError() error { return errTest }

var errTest = &testErr{"boom"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
