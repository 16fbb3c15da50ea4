package terminal

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/srg/termino/internal/groutine"
)

// ArmExitGuard registers restoration with the logrus exit-handler chain, so
// any logrus.Exit or Fatal anywhere in the process restores the terminal
// first. Must be armed before EnterRaw: a failure halfway through raw entry
// then still runs cleanup (which the latch turns into a no-op when raw mode
// was never reached).
func (s *Session) ArmExitGuard() {
	logrus.DeferExitHandler(s.Restore)
}

// ArmSignalGuard installs the interrupt handler: the first SIGINT restores
// the terminal through the signal-context path and ends the process with
// status 1. The handler is single-shot and the restoration latch makes a
// second interrupt harmless, so the guard can never re-enter itself.
func (s *Session) ArmSignalGuard() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	groutine.Go(nil, "terminal-signal-guard", func(ctx context.Context) {
		<-ch
		s.logger.Debug("interrupt received, restoring terminal")
		s.RestoreOnSignal()
		s.logger.Exit(1)
	})
}
