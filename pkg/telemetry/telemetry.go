// Package telemetry mirrors update progress into redis so external
// consumers (dashboards, fleet tooling) can follow a flash session live.
// A nil Publisher is a valid no-op, keeping the core usable without redis.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// KeyUpdate is the hash holding the latest session state and progress.
	KeyUpdate = "fota:update"
	// ChannelEvents carries CBOR-encoded Event payloads.
	ChannelEvents = "fota:events"
)

// Event is one progress notification as published on ChannelEvents.
type Event struct {
	State string `cbor:"state,omitempty"`
	Sent  int    `cbor:"sent,omitempty"`
	Total int    `cbor:"total,omitempty"`
}

// Publisher writes state to a redis hash and publishes each change.
type Publisher struct {
	client *redis.Client
	ctx    context.Context
}

// New connects to redis and verifies the connection.
func New(addr, password string, db int) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Publisher{client: client, ctx: ctx}, nil
}

// ReportState records a state-machine transition.
func (p *Publisher) ReportState(state string) {
	if p == nil {
		return
	}
	p.publish("state", state, Event{State: state})
}

// ReportProgress records streaming progress.
func (p *Publisher) ReportProgress(sent, total int) {
	if p == nil {
		return
	}
	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, KeyUpdate, "sent", strconv.Itoa(sent))
	pipe.HSet(p.ctx, KeyUpdate, "total", strconv.Itoa(total))
	if data, err := cbor.Marshal(Event{Sent: sent, Total: total}); err == nil {
		pipe.Publish(p.ctx, ChannelEvents, data)
	}
	if _, err := pipe.Exec(p.ctx); err != nil {
		log.Printf("Failed to publish progress %d/%d: %v", sent, total, err)
	}
}

func (p *Publisher) publish(field, value string, event Event) {
	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, KeyUpdate, field, value)
	if data, err := cbor.Marshal(event); err == nil {
		pipe.Publish(p.ctx, ChannelEvents, data)
	}
	if _, err := pipe.Exec(p.ctx); err != nil {
		log.Printf("Failed to publish %s=%s: %v", field, value, err)
	}
}

// Close releases the redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
