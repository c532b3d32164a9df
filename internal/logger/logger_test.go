package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("production by default", func(t *testing.T) {
		require.NotNil(t, New())
	})

	t.Run("development encoder", func(t *testing.T) {
		t.Setenv("ATRBT_ENV", "dev")
		require.NotNil(t, New())
	})
}

func TestFromContext(t *testing.T) {
	log := New()
	ctx := context.WithValue(context.Background(), ContextKey, log)

	assert.Same(t, log, FromContext(ctx))

	// a bare context still yields a usable logger
	assert.NotNil(t, FromContext(context.Background()))
}
