package session

import (
	"time"

	"github.com/rs/zerolog/log"
)

// schedule arms the settle timer, replacing any pending one. The callback
// only enqueues; the generation in m decides whether it still applies.
func (c *Coordinator) schedule(d time.Duration, m settleMsg) {
	c.cancelSettle()
	c.settle = c.clock.AfterFunc(d, func() { c.enqueue(m) })

	log.Debug().
		Str("room_id", c.room.ID).
		Uint64("generation", m.gen).
		Dur("delay", d).
		Msg("scheduled settle")
}

func (c *Coordinator) cancelSettle() {
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
}

// startTicker drives the turn clock. Ticks go through the inbox like any
// other request.
func (c *Coordinator) startTicker() {
	if c.ticker != nil {
		return
	}
	c.ticker = c.clock.NewTicker(c.cfg.TickInterval)
	c.tickerStop = make(chan struct{})

	go func(ch <-chan time.Time, stop <-chan struct{}) {
		for {
			select {
			case <-ch:
				c.enqueue(tickMsg{})
			case <-stop:
				return
			case <-c.ctx.Done():
				return
			}
		}
	}(c.ticker.Chan(), c.tickerStop)
}

func (c *Coordinator) stopTicker() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.tickerStop)
	c.ticker = nil
	c.tickerStop = nil
}

func (c *Coordinator) stopTimers() {
	c.cancelSettle()
	c.stopTicker()
}
