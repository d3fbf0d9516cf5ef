package tunnel

import (
	"fmt"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

// heartbeat pings every Interval and waits Timeout for any pong. MaxFailures
// consecutive misses take the tunnel down.
func (t *BotTunnel) heartbeat() {
	defer t.wg.Done()
	hb := t.opts.Heartbeat
	if hb.Timeout <= 0 || hb.Timeout > hb.Interval {
		hb.Timeout = hb.Interval
	}
	if hb.MaxFailures <= 0 {
		hb.MaxFailures = 1
	}

	ticker := time.NewTicker(hb.Interval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}

		// Stale pongs from a previous round do not count.
		select {
		case <-t.pong:
		default:
		}
		if err := t.write(&protocol.PingSend{}, protocol.NewPacketID()); err != nil {
			return
		}

		timer := time.NewTimer(hb.Timeout)
		select {
		case <-t.done:
			timer.Stop()
			return
		case <-t.pong:
			timer.Stop()
			failures = 0
		case <-timer.C:
			failures++
			t.logf("tunnel: %s: missed heartbeat %d/%d", t.label(), failures, hb.MaxFailures)
			if failures >= hb.MaxFailures {
				t.down(fmt.Sprintf("%d missed heartbeats", failures), true)
				return
			}
		}
	}
}
