// Command flowcorodemo demonstrates basic FlowCoro-Go usage: starting
// tasks, composing them with combinators, and a coroutine-aware sync
// primitive - no new runtime semantics, just a tour of the public API.
//
// Grounded on the teacher's eventloop/examples/01_basic_usage/main.go.
//
// Run with: go run ./cmd/flowcorodemo
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/flowcoro/flowcoro"
	"github.com/flowcoro/flowcoro/combinators"
	"github.com/flowcoro/flowcoro/syncx"
	"github.com/flowcoro/flowcoro/task"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt := flowcoro.Configure(flowcoro.Config{WorkerCount: 4})
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), time.Second)
		defer shCancel()
		if err := rt.Shutdown(shCtx); err != nil {
			fmt.Printf("shutdown: %v\n", err)
		}
	}()

	// A task that sleeps through the manager's timer heap, then returns.
	greet := task.Go(rt.Manager, func(ctx context.Context) (string, error) {
		if err := combinators.SleepFor(ctx, rt.Manager, 50*time.Millisecond); err != nil {
			return "", err
		}
		return "hello from a task", nil
	})

	// Fan out three tasks and wait for all of them.
	sum := task.Go(rt.Manager, func(ctx context.Context) (int, error) { return 1, nil })
	product := task.Go(rt.Manager, func(ctx context.Context) (int, error) { return 2, nil })
	diff := task.Go(rt.Manager, func(ctx context.Context) (int, error) { return 3, nil })
	results, err := combinators.WhenAll(ctx, sum, product, diff)
	if err != nil {
		fmt.Printf("when_all failed: %v\n", err)
		return
	}
	fmt.Printf("when_all results: %v\n", results)

	// A mutex guarding a shared counter across several concurrently
	// launched tasks.
	mu := syncx.NewAsyncMutex(rt.Manager)
	counter := 0
	const n = 5
	incDone := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		task.Go(rt.Manager, func(ctx context.Context) (struct{}, error) {
			if err := mu.Lock(ctx); err != nil {
				return struct{}{}, err
			}
			counter++
			mu.Unlock()
			incDone <- struct{}{}
			return struct{}{}, nil
		})
	}
	for i := 0; i < n; i++ {
		<-incDone
	}
	fmt.Printf("counter after %d concurrent increments: %d\n", n, counter)

	msg, err := greet.Get(ctx)
	if err != nil {
		fmt.Printf("greet failed: %v\n", err)
		return
	}
	fmt.Println(msg)
}
