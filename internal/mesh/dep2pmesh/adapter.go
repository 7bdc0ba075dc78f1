// Package dep2pmesh binds the mesh transport boundary to a dep2p node.
// One realm pubsub topic carries all beacon envelopes; peers in the same
// realm acknowledge data envelopes automatically.
package dep2pmesh

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-dep2p"
	"github.com/dep2p/go-dep2p/pkg/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pvieira/beacon/internal/mesh"
	"go.uber.org/zap"
)

// seenCacheSize bounds the duplicate-suppression window. Emergency messages
// arrive up to three times; the cache must comfortably outlive the 3s
// redundancy window under normal traffic.
const seenCacheSize = 4096

// Config carries the node settings the daemon resolves from its own config.
type Config struct {
	IdentityFile   string
	ListenPort     int
	RealmKey       string
	Topic          string
	BootstrapPeers []string
	LogFile        string
}

// Adapter implements mesh.Transport over a dep2p realm pubsub topic.
// Publishes run detached so callers never block on network I/O; outcomes
// come back on the event channel.
type Adapter struct {
	node   *dep2p.Node
	realm  *dep2p.Realm
	topic  *dep2p.Topic
	sub    *dep2p.Subscription
	seen   *lru.Cache[string, struct{}]
	events chan mesh.Event
	logger *zap.Logger
	cancel context.CancelFunc
}

// New starts a dep2p node, joins the configured realm and topic, and begins
// draining inbound messages and peer events.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Adapter, error) {
	opts := []dep2p.Option{
		dep2p.WithIdentityFromFile(cfg.IdentityFile),
		dep2p.WithListenPort(cfg.ListenPort),
	}
	if len(cfg.BootstrapPeers) > 0 {
		opts = append(opts, dep2p.WithBootstrapPeers(cfg.BootstrapPeers...))
	}
	if cfg.LogFile != "" {
		opts = append(opts, dep2p.WithLogFile(cfg.LogFile))
	}

	node, err := dep2p.Start(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("start mesh node: %w", err)
	}

	realm, err := node.JoinRealm(ctx, []byte(cfg.RealmKey))
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("join realm: %w", err)
	}

	topic, err := realm.PubSub().Join(cfg.Topic)
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("join topic %q: %w", cfg.Topic, err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		_ = node.Close()
		return nil, fmt.Errorf("subscribe topic %q: %w", cfg.Topic, err)
	}

	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &Adapter{
		node:   node,
		realm:  realm,
		topic:  topic,
		sub:    sub,
		seen:   seen,
		events: make(chan mesh.Event, 256),
		logger: logger,
		cancel: cancel,
	}

	go a.receiveLoop(ctx)
	go a.peerLoop(ctx)

	logger.Info("mesh transport started",
		zap.String("node_id", node.ID()),
		zap.String("topic", cfg.Topic))
	return a, nil
}

// Publish enqueues one envelope. The actual pubsub publish runs detached;
// acceptance or failure of data envelopes is reported as an event.
func (a *Adapter) Publish(_ context.Context, env mesh.Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := a.topic.Publish(ctx, data)
		if env.Kind != mesh.EnvelopeData {
			// Acks are best-effort; nothing tracks their outcome.
			if err != nil {
				a.logger.Debug("ack publish failed", zap.Error(err), zap.String("msg_id", env.MessageID))
			}
			return
		}
		if err != nil {
			a.emit(mesh.Event{
				Kind:      mesh.EventSendFailed,
				MessageID: env.MessageID,
				Reason:    err.Error(),
				At:        time.Now(),
			})
			return
		}
		a.emit(mesh.Event{
			Kind:      mesh.EventAccepted,
			MessageID: env.MessageID,
			At:        time.Now(),
		})
	}()
	return nil
}

// Events returns the inbound event stream.
func (a *Adapter) Events() <-chan mesh.Event {
	return a.events
}

// LocalID returns the mesh node id used as the local sender identity.
func (a *Adapter) LocalID() string {
	return a.node.ID()
}

// PeerCount returns the number of currently connected peers.
func (a *Adapter) PeerCount() int {
	return a.node.ConnectionCount()
}

// IsConnected reports whether the node is running with at least one peer.
func (a *Adapter) IsConnected() bool {
	return a.node.IsRunning() && a.node.ConnectionCount() > 0
}

// Close stops the loops and shuts the node down.
func (a *Adapter) Close() error {
	a.cancel()
	a.sub.Cancel()
	a.topic.Close()
	return a.node.Close()
}

func (a *Adapter) receiveLoop(ctx context.Context) {
	for {
		msg, err := a.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.From == a.node.ID() {
			continue
		}

		env, err := decodeEnvelope(msg.Data)
		if err != nil {
			a.logger.Warn("undecodable envelope dropped", zap.Error(err), zap.String("from", msg.From))
			continue
		}

		// The same envelope can arrive several times (emergency
		// redundancy, gossip duplication). Surface each one once.
		key := dedupeKey(env, msg.From)
		if _, dup := a.seen.Get(key); dup {
			continue
		}
		a.seen.Add(key, struct{}{})

		switch env.Kind {
		case mesh.EnvelopeData:
			a.emit(mesh.Event{
				Kind:      mesh.EventMessageReceived,
				MessageID: env.MessageID,
				Sender:    env.Sender,
				Body:      env.Body,
				Peer:      msg.From,
				At:        env.SentAt,
			})
			a.ackData(env.MessageID)
		case mesh.EnvelopeAck:
			a.emit(mesh.Event{
				Kind:      mesh.EventDeliveryAck,
				MessageID: env.MessageID,
				Peer:      msg.From,
				At:        env.SentAt,
			})
		case mesh.EnvelopeRead:
			a.emit(mesh.Event{
				Kind:      mesh.EventReadAck,
				MessageID: env.MessageID,
				Peer:      msg.From,
				At:        env.SentAt,
			})
		default:
			a.logger.Warn("unknown envelope kind", zap.String("kind", string(env.Kind)))
		}
	}
}

// ackData replies with a delivery ack for a received data envelope.
func (a *Adapter) ackData(messageID string) {
	_ = a.Publish(context.Background(), mesh.Envelope{
		Kind:      mesh.EnvelopeAck,
		MessageID: messageID,
		Sender:    a.node.ID(),
		SentAt:    time.Now(),
	})
}

func (a *Adapter) peerLoop(ctx context.Context) {
	eventBus := a.node.Host().EventBus()
	if eventBus == nil {
		a.logger.Warn("node event bus unavailable, peer events disabled")
		return
	}

	connected, err := eventBus.Subscribe(new(types.EvtPeerConnected))
	if err != nil {
		a.logger.Error("subscribe peer connected events", zap.Error(err))
		return
	}
	defer connected.Close()

	disconnected, err := eventBus.Subscribe(new(types.EvtPeerDisconnected))
	if err != nil {
		a.logger.Error("subscribe peer disconnected events", zap.Error(err))
		return
	}
	defer disconnected.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-connected.Out():
			if e, ok := evt.(*types.EvtPeerConnected); ok {
				a.emit(mesh.Event{
					Kind: mesh.EventPeerConnected,
					Peer: string(e.PeerID),
					At:   time.Now(),
				})
			}
		case evt := <-disconnected.Out():
			if e, ok := evt.(*types.EvtPeerDisconnected); ok {
				a.emit(mesh.Event{
					Kind: mesh.EventPeerDisconnected,
					Peer: string(e.PeerID),
					At:   time.Now(),
				})
			}
		}
	}
}

// emit delivers an event without ever blocking the adapter loops.
func (a *Adapter) emit(evt mesh.Event) {
	select {
	case a.events <- evt:
	default:
		a.logger.Warn("event channel full, dropping", zap.String("kind", string(evt.Kind)))
	}
}

func dedupeKey(env mesh.Envelope, from string) string {
	return string(env.Kind) + "|" + env.MessageID + "|" + from
}
