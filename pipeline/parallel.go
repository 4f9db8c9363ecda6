package pipeline

import (
	"context"
	"sync"
)

// Task is one unit of a parallel fan-out.
type Task[T any] func(ctx context.Context) (T, error)

// Parallel runs every task concurrently and waits for all of them.
// Results are positional: results[i] belongs to tasks[i]. The first
// error cancels the context passed to the remaining tasks and fails
// the whole join; no partial results are returned.
func Parallel[T any](ctx context.Context, tasks []Task[T]) ([]T, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]T, len(tasks))
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			result, err := task(ctx)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[i] = result
		}(i, task)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
