package common

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPanic(t *testing.T) {
	var buf bytes.Buffer
	InitLogger(LoggerOptions{Enabled: true, Writer: &buf, Level: slog.LevelDebug})
	defer InitLogger(LoggerOptions{})

	sentinel := errors.New("sentinel")
	defer func() {
		r := recover()
		err, ok := r.(error)
		assert.True(t, ok)
		assert.True(t, errors.Is(err, sentinel))
		assert.Contains(t, buf.String(), "sentinel")
	}()
	Panic(errors.Wrap(sentinel, "kfree"))
}

func TestInitLoggerDisabled(t *testing.T) {
	var buf bytes.Buffer
	InitLogger(LoggerOptions{Enabled: false, Writer: &buf})
	L.Info("nothing")
	assert.Equal(t, 0, buf.Len())
}
