// Package coordinator runs engine passes in the background for callers that
// must not block, such as a UI event loop or an HTTP handler.
//
// At most one pass is outstanding at a time. A request made while a pass is
// running is rejected with a Busy result instead of being queued.
// Notifications are posted through a Dispatcher so the embedder decides
// which goroutine observes them.
//
// # Usage
//
//	q := coordinator.NewQueue(64)
//	c := coordinator.New(
//	    coordinator.WithDispatcher(q),
//	    coordinator.WithEvents(coordinator.Events{
//	        OnCompleted: func(r engine.Result) { fmt.Println(r.Message) },
//	    }),
//	)
//	f := c.RunPassAsync(ctx, g, engine.Environment{}, nil)
//	res, _ := f.Wait(ctx)
//	q.Drain()
package coordinator
