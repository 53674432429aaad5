package logging

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToStderr(t *testing.T) {
	l := New(nil, slog.LevelInfo)
	assert.NotNil(t, l)
}

func TestWithCrankDoesNotPanic(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	assert.NoError(t, err)
	defer f.Close()

	l := New(f, slog.LevelDebug)
	annotated := l.WithCrank(context.Background(), "crank-1")
	assert.NotPanics(t, func() {
		annotated.Info("hello")
		annotated.Warn("careful")
		annotated.Error("broken")
	})
}
