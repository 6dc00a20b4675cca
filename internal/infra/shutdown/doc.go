// Package shutdown ties a command's lifetime to process signals.
//
// A Handler hands out a context that is cancelled on SIGINT or SIGTERM and
// runs registered cleanup hooks, newest first, exactly once:
//
//	h := shutdown.NewHandler(5 * time.Second)
//	ctx, stop := h.Context(context.Background())
//	defer stop()
//	defer h.Shutdown()
//	h.OnShutdown(engine.Close)
package shutdown
