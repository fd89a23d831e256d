//go:build unix

package uthreads

import (
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
)

// signalTimer arms a real ITIMER_VIRTUAL and receives SIGALRM through
// os/signal, the closest portable-Go equivalent of uthreads.c's
// setitimer(ITIMER_VIRTUAL, ...)/sigaction(SIGVTALRM, ...) pair (Go's own
// runtime reserves SIGVTALRM, so ITIMER_VIRTUAL/SIGALRM stands in for it
// here). Only built on unix targets, since golang.org/x/sys/unix and
// ITIMER_VIRTUAL have no portable equivalent.
type signalTimer struct {
	sigCh  chan os.Signal
	stopCh chan struct{}
}

func newSignalTimer() *signalTimer {
	return &signalTimer{}
}

func (t *signalTimer) Arm(quantum time.Duration, onTick func()) error {
	if quantum <= 0 {
		return systemErr("signalTimer.Arm", "quantum must be > 0")
	}
	usecs := quantum.Microseconds()
	it := unix.Itimerval{
		Value:    unix.NsecToTimeval(usecs * 1000),
		Interval: unix.NsecToTimeval(usecs * 1000),
	}
	t.sigCh = make(chan os.Signal, 1)
	t.stopCh = make(chan struct{})
	signal.Notify(t.sigCh, unix.SIGALRM)
	if err := unix.Setitimer(unix.ITIMER_VIRTUAL, &it, nil); err != nil {
		signal.Stop(t.sigCh)
		return systemErr("signalTimer.Arm", "setitimer: "+err.Error())
	}
	go func(sigCh chan os.Signal, stop chan struct{}) {
		for {
			select {
			case <-sigCh:
				onTick()
			case <-stop:
				return
			}
		}
	}(t.sigCh, t.stopCh)
	return nil
}

func (t *signalTimer) Stop() {
	if t.stopCh == nil {
		return
	}
	var disarm unix.Itimerval
	unix.Setitimer(unix.ITIMER_VIRTUAL, &disarm, nil)
	signal.Stop(t.sigCh)
	close(t.stopCh)
}
