package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewShutdownContext_ParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, stop := NewShutdownContext(parent)
	defer stop()

	cancelParent()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown context was not canceled with its parent")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestNewShutdownContext_Stop(t *testing.T) {
	ctx, stop := NewShutdownContext(context.Background())
	stop()

	assert.Error(t, ctx.Err())
}
