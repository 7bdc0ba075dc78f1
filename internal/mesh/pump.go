package mesh

import (
	"context"
	"time"

	"github.com/pvieira/beacon/internal/bus"
	"github.com/pvieira/beacon/internal/metrics"
	"github.com/pvieira/beacon/internal/quality"
	"go.uber.org/zap"
)

// QualityChange is the payload of quality.changed bus events.
type QualityChange struct {
	Level     quality.Level
	Peers     int
	Connected bool
}

// Pump drains the transport event stream onto the bus. It does not interpret
// delivery semantics (the tracker subscribes for that); it only translates
// events, keeps the peer gauge current and publishes quality changes.
type Pump struct {
	transport Transport
	bus       *bus.Bus
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cancel    context.CancelFunc

	lastLevel quality.Level
}

// NewPump creates a pump for the given transport.
func NewPump(t Transport, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Pump {
	return &Pump{transport: t, bus: b, metrics: m, logger: logger, lastLevel: quality.Offline}
}

// Start begins draining transport events until Stop or ctx cancellation.
func (p *Pump) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop stops the pump.
func (p *Pump) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pump) loop(ctx context.Context) {
	events := p.transport.Events()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			p.handle(evt)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pump) handle(evt Event) {
	p.bus.Publish(bus.Event{
		Kind:    bus.NSMesh + string(evt.Kind),
		At:      time.Now(),
		Payload: evt,
	})

	switch evt.Kind {
	case EventPeerConnected, EventPeerDisconnected:
		peers := p.transport.PeerCount()
		connected := p.transport.IsConnected()
		if p.metrics != nil {
			p.metrics.ConnectedPeers.Set(float64(peers))
		}

		level := quality.Estimate(peers, connected)
		if level == p.lastLevel {
			return
		}
		p.lastLevel = level
		p.logger.Info("mesh quality changed",
			zap.String("level", string(level)),
			zap.Int("peers", peers))
		p.bus.Publish(bus.Event{
			Kind:    "quality.changed",
			At:      time.Now(),
			Payload: QualityChange{Level: level, Peers: peers, Connected: connected},
		})
	}
}
