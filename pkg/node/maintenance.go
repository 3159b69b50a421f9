package node

import (
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/sudokumesh/pkg/protocol"
)

// maintain asks every peer for its neighbors and counters once at start and
// then on every tick.
func (n *Node) maintain() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.MaintenanceInterval)
	defer ticker.Stop()

	n.refresh()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.refresh()
		}
	}
}

// refresh reads the registry without the dispatch goroutine. A failed send
// closes that connection; its reader reports the disconnect.
func (n *Node) refresh() {
	for _, pc := range n.registry.Peers() {
		for _, m := range []protocol.Message{protocol.NetworkInfoRequest{}, protocol.StatsRequest{}} {
			if err := pc.send(m); err != nil {
				n.log.Warn("maintenance send failed", zap.String("remote", pc.remote), zap.Error(err))
				break
			}
		}
	}
}
