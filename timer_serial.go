package uthreads

import (
	"time"

	"go.bug.st/serial"
)

// serialTimer is an alternate TimerSource reading one tick per incoming byte
// off a serial port, standing in for an external microcontroller's hardware
// timer driving the virtual CPU clock — tinygo's native embedded habitat,
// even though the scheduler core itself is host-only. quantum is advisory
// here: it is only used to size the read timeout, since the actual tick
// cadence is whatever the remote device sends.
type serialTimer struct {
	port serial.Port
	stop chan struct{}
	done chan struct{}
}

// NewSerialTimerSource opens portName at baud and returns a TimerSource that
// ticks once per byte received.
func NewSerialTimerSource(portName string, baud int) (TimerSource, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, systemErr("NewSerialTimerSource", err.Error())
	}
	return &serialTimer{port: port}, nil
}

func (t *serialTimer) Arm(quantum time.Duration, onTick func()) error {
	if err := t.port.SetReadTimeout(quantum); err != nil {
		return systemErr("serialTimer.Arm", err.Error())
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		buf := make([]byte, 64)
		for {
			select {
			case <-t.stop:
				return
			default:
			}
			n, err := t.port.Read(buf)
			if err != nil {
				return
			}
			for i := 0; i < n; i++ {
				onTick()
			}
		}
	}()
	return nil
}

func (t *serialTimer) Stop() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.port.Close()
	<-t.done
}
