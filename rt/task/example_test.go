package task_test

import (
	"fmt"

	"github.com/kean/fetchkit/rt/task"
)

func Example() {
	// One unit of work, shared by two subscribers. Work starts lazily on the
	// first subscription and runs exactly once.
	var producer *task.Task[string]
	t := task.New(func(t *task.Task[string]) { producer = t })

	t.Subscribe(func(e task.Event[string]) {
		if e.Kind == task.EventValue && e.Final {
			fmt.Println("a:", e.Value)
		}
	})
	t.Subscribe(func(e task.Event[string]) {
		if e.Kind == task.EventValue && e.Final {
			fmt.Println("b:", e.Value)
		}
	})

	producer.Send("hello", true)

	// Output:
	// a: hello
	// b: hello
}

func ExamplePool() {
	pool := task.NewPool[string, int](true)

	var builds int
	create := func() *task.Task[int] {
		builds++
		return task.New(func(*task.Task[int]) {})
	}

	t1 := pool.Task("img1", create)
	t2 := pool.Task("img1", create)
	fmt.Println("shared:", t1 == t2, "builds:", builds)

	// Output:
	// shared: true builds: 1
}
