// Package shipper drains ready buffers from the router and hands them,
// in order, to a Sender. The transport behind the Sender is outside this
// package; a send failure stops the current pass so nothing is shipped
// out of order.
package shipper

import (
	"sync"
	"time"

	"github.com/vieworks/oap-logstream/buffers"
	"github.com/vieworks/oap-logstream/utils/log"
)

// Sender delivers one ready buffer downstream. Returning an error leaves
// the buffer (and everything after it) queued for the next pass.
type Sender interface {
	Send(b *buffers.Buffer) error
}

type Shipper struct {
	buffers  *buffers.Buffers
	sender   Sender
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(bufs *buffers.Buffers, sender Sender, interval time.Duration) *Shipper {
	return &Shipper{
		buffers:  bufs,
		sender:   sender,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic drain loop.
func (s *Shipper) Start() {
	go s.loop()
}

func (s *Shipper) loop() {
	defer close(s.done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			// Final pass so a clean stop leaves as little behind as possible.
			s.Ship()
			return
		case <-t.C:
			s.Ship()
		}
	}
}

// Ship performs one ordered drain pass.
func (s *Shipper) Ship() {
	s.buffers.ForEachReadyData(func(b *buffers.Buffer) bool {
		if err := s.sender.Send(b); err != nil {
			log.Warn("stop shipping pass, buffer %d not sent: %v", b.ID(), err)
			return false
		}
		return true
	})
}

// Stop halts the loop after a final drain pass. Safe to call more than
// once.
func (s *Shipper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}
