package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/pkg/async"
)

func TestPoolExecute(t *testing.T) {
	t.Run("runs every task", func(t *testing.T) {
		var ran atomic.Int32
		tasks := make([]async.Task, 0, 8)
		for i := 0; i < 8; i++ {
			tasks = append(tasks, async.Task{
				Name: "task",
				Execute: func(ctx context.Context) error {
					ran.Add(1)
					return nil
				},
			})
		}

		err := async.NewPool(3).Execute(context.Background(), tasks)
		require.NoError(t, err)
		assert.Equal(t, int32(8), ran.Load())
	})

	t.Run("returns the failing task name", func(t *testing.T) {
		boom := errors.New("boom")
		tasks := []async.Task{
			{Name: "visits", Execute: func(ctx context.Context) error { return nil }},
			{Name: "events", Execute: func(ctx context.Context) error { return boom }},
		}

		err := async.NewPool(2).Execute(context.Background(), tasks)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "events")
	})

	t.Run("canceled context fails fast", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Int32
		err := async.NewPool(1).Execute(ctx, []async.Task{
			{Name: "visits", Execute: func(ctx context.Context) error { ran.Add(1); return nil }},
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(0), ran.Load())
	})
}
