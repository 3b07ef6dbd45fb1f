package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "trackerbridge/pkg/errors"
)

func TestFromContext_MissingScopeIsFatal(t *testing.T) {
	_, err := FromContext(context.Background())

	require.Error(t, err)
	assert.True(t, pkgerrors.IsFatal(err))
}

func TestMemoryManager_LockWithoutScopeIsFatal(t *testing.T) {
	m := NewMemoryManager()

	err := m.Lock(context.Background(), SubjectKey("subject-1"))

	require.Error(t, err)
	assert.True(t, pkgerrors.IsFatal(err))
}

func TestMemoryManager_ReentrantLock(t *testing.T) {
	m := NewMemoryManager()
	ctx, lc := NewContext(context.Background())

	require.NoError(t, m.Lock(ctx, SubjectKey("subject-1")))
	require.NoError(t, m.Lock(ctx, SubjectKey("subject-1")))

	assert.True(t, lc.Holds(SubjectKey("subject-1")))
	require.NoError(t, lc.Close(ctx))
	assert.False(t, lc.Holds(SubjectKey("subject-1")))
}

func TestMemoryManager_SerializesAcrossScopes(t *testing.T) {
	m := NewMemoryManager()
	key := SubjectKey("subject-1")

	ctx1, lc1 := NewContext(context.Background())
	require.NoError(t, m.Lock(ctx1, key))

	acquired := make(chan struct{})
	go func() {
		ctx2, lc2 := NewContext(context.Background())
		if err := m.Lock(ctx2, key); err != nil {
			return
		}
		close(acquired)
		_ = lc2.Close(ctx2)
	}()

	select {
	case <-acquired:
		t.Fatal("second scope acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lc1.Close(ctx1))

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second scope never acquired the lock after release")
	}
}

func TestContext_CloseReleasesInReverseOrder(t *testing.T) {
	ctx, lc := NewContext(context.Background())

	var order []string
	lc.register("a", func(context.Context) error {
		order = append(order, "a")
		return nil
	})
	lc.register("b", func(context.Context) error {
		order = append(order, "b")
		return nil
	})

	require.NoError(t, lc.Close(ctx))
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestContext_CloseReturnsFirstErrorButRunsAll(t *testing.T) {
	ctx, lc := NewContext(context.Background())

	var released []string
	lc.register("a", func(context.Context) error {
		released = append(released, "a")
		return nil
	})
	lc.register("b", func(context.Context) error {
		released = append(released, "b")
		return assert.AnError
	})

	err := lc.Close(ctx)

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"b", "a"}, released)
}

func TestContext_CloseIsIdempotent(t *testing.T) {
	m := NewMemoryManager()
	ctx, lc := NewContext(context.Background())
	require.NoError(t, m.Lock(ctx, SubjectKey("subject-1")))

	require.NoError(t, lc.Close(ctx))
	require.NoError(t, lc.Close(ctx))
}
