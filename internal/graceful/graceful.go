package graceful

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// HandleSignals blocks until SIGINT or SIGTERM, then runs every stop function
// concurrently and waits for them.
func HandleSignals(stopFunc ...func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	<-signals
	wg := sync.WaitGroup{}
	wg.Add(len(stopFunc))
	for _, f := range stopFunc {
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

// Context returns a context cancelled on the first exit signal.
func Context() (context.Context, context.CancelFunc) {
	ctx, stop := context.WithCancel(context.Background())
	go HandleSignals(stop)
	return ctx, stop
}
