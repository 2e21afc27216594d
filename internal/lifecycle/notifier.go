package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

// Listener receives host lifecycle transitions
type Listener interface {
	EnterBackground()
	EnterForeground()
}

// Notifier translates OS signals into lifecycle transitions
type Notifier struct {
	background os.Signal
	foreground os.Signal
	signals    chan os.Signal
}

// NewNotifier creates a notifier for the given background and foreground
// signals.
func NewNotifier(background, foreground os.Signal) *Notifier {
	return &Notifier{
		background: background,
		foreground: foreground,
		signals:    make(chan os.Signal, 4),
	}
}

// Run delivers transitions to l until ctx is done
func (n *Notifier) Run(ctx context.Context, l Listener) {
	if n.background == nil || n.foreground == nil {
		<-ctx.Done()
		return
	}
	signal.Notify(n.signals, n.background, n.foreground)
	defer signal.Stop(n.signals)

	n.loop(ctx, l)
}

func (n *Notifier) loop(ctx context.Context, l Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-n.signals:
			switch sig {
			case n.background:
				slog.Info("Host entering background", "signal", sig)
				l.EnterBackground()
			case n.foreground:
				slog.Info("Host entering foreground", "signal", sig)
				l.EnterForeground()
			}
		}
	}
}
