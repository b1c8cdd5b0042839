/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus to NATS so that
// media.ready and channel lifecycle events reach every instance.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/friendsincode/chorus/internal/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const subjectPrefix = "chorus.events."

// Bridge republishes local events to NATS and injects remote events into the
// local bus. Events originating from this node are not re-injected.
type Bridge struct {
	conn   *nats.Conn
	bus    *events.Bus
	logger zerolog.Logger
	nodeID string
	subs   []*nats.Subscription
}

type wireMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

// NewBridge connects to NATS and wires the given bus for the listed event
// types. The caller owns the bus; Close tears down NATS subscriptions only.
func NewBridge(url string, bus *events.Bus, types []events.EventType, logger zerolog.Logger) (*Bridge, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	bridge := &Bridge{
		conn:   conn,
		bus:    bus,
		logger: logger.With().Str("component", "eventbus").Logger(),
		nodeID: uuid.NewString(),
	}

	for _, eventType := range types {
		if err := bridge.subscribe(eventType); err != nil {
			bridge.Close()
			return nil, err
		}
		go bridge.forward(eventType)
	}

	bridge.logger.Info().Str("url", url).Str("node_id", bridge.nodeID).Msg("NATS event bridge connected")
	return bridge, nil
}

func (b *Bridge) subscribe(eventType events.EventType) error {
	sub, err := b.conn.Subscribe(subjectPrefix+string(eventType), func(msg *nats.Msg) {
		var wire wireMessage
		if err := json.Unmarshal(msg.Data, &wire); err != nil {
			b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("malformed event message")
			return
		}
		if wire.NodeID == b.nodeID {
			return
		}
		payload := wire.Payload
		if payload == nil {
			payload = events.Payload{}
		}
		payload["_origin"] = wire.NodeID
		b.bus.Publish(wire.EventType, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", eventType, err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

// forward relays local events of the given type to NATS.
func (b *Bridge) forward(eventType events.EventType) {
	sub := b.bus.Subscribe(eventType)
	for payload := range sub {
		// Events injected from a remote node carry an origin marker and
		// must not bounce back out.
		if _, remote := payload["_origin"]; remote {
			continue
		}
		wire := wireMessage{
			EventType: eventType,
			Payload:   payload,
			Timestamp: time.Now().UTC(),
			NodeID:    b.nodeID,
		}
		data, err := json.Marshal(wire)
		if err != nil {
			b.logger.Warn().Err(err).Str("event", string(eventType)).Msg("marshal event failed")
			continue
		}
		if err := b.conn.Publish(subjectPrefix+string(eventType), data); err != nil {
			b.logger.Warn().Err(err).Str("event", string(eventType)).Msg("publish event failed")
		}
	}
}

// Close drains NATS subscriptions and closes the connection.
func (b *Bridge) Close() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
