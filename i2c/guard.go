package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/boardtemp"
)

// Guard bounds blocking transfers by the caller's context. At most one
// transfer is in flight; while an abandoned one is still running, new
// transfers fail fast with boardtemp.ErrBusBusy. The zero value is ready to use.
type Guard struct {
	mx      sync.Mutex
	pending chan struct{}
}

func (g *Guard) Run(ctx context.Context, address byte, transfer func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mx.Lock()
	if g.pending != nil {
		select {
		case <-g.pending:
			g.pending = nil
		default:
			g.mx.Unlock()
			return boardtemp.ErrBusBusy
		}
	}
	done := make(chan struct{})
	g.pending = done
	g.mx.Unlock()

	var err error
	go func() {
		defer close(done)
		err = transfer()
	}()

	select {
	case <-done:
		g.mx.Lock()
		if g.pending == done {
			g.pending = nil
		}
		g.mx.Unlock()
		return err
	case <-ctx.Done():
		slog.Debug("abandoning i2c transfer", "address", fmt.Sprintf("%#x", address), "error", ctx.Err())
		return fmt.Errorf("%w: %w", boardtemp.ErrBusTimeout, ctx.Err())
	}
}
