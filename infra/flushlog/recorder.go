package flushlog

import (
	"context"

	"github.com/kilianp07/roamsync/core/logger"
	"github.com/kilianp07/roamsync/core/roaming"
	"github.com/kilianp07/roamsync/internal/eventbus"
)

// Start appends every flush event published on bus to store until ctx is
// canceled or the bus is closed. Skipped and empty flushes are not recorded.
// The returned channel is closed when the recorder stops.
func Start(ctx context.Context, bus eventbus.Subscriber[roaming.Event], store Store, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				fe, ok := ev.(roaming.FlushEvent)
				if !ok || fe.Report.Skipped || fe.Report.Empty {
					continue
				}
				if err := store.Append(ctx, NewRecord(fe.Report)); err != nil && log != nil {
					log.Errorf("flush log append: %v", err)
				}
			}
		}
	}()
	return done
}
