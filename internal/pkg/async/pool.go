// internal/pkg/async/pool.go
package async

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one named unit of work run by a Pool.
type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

// Pool runs tasks concurrently with a bounded number of workers.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	return &Pool{workerCount: workerCount}
}

// Execute runs every task and waits for all of them. The first failure
// cancels the context handed to the remaining tasks and is returned,
// wrapped with the task name.
func (p *Pool) Execute(ctx context.Context, tasks []Task) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.workerCount > 0 {
		g.SetLimit(p.workerCount)
	}

	for _, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			if err := task.Execute(gctx); err != nil {
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			return nil
		})
	}

	return g.Wait()
}
