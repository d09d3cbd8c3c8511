package realtime

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/estatehub/realtime/internal/domain"
)

// Frame is the envelope written to clients for every server event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DispatchStats counts per-connection delivery outcomes since start.
type DispatchStats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Published uint64 `json:"published"`
}

// Dispatcher fans events out to the members of a room. Delivery is best effort:
// a failed write to one connection is logged and does not affect the others.
type Dispatcher struct {
	registry *Registry
	log      *slog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

func NewDispatcher(registry *Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{registry: registry, log: log}
}

// Publish pushes payload tagged with event to every current member of room and
// returns how many connections accepted it. An empty room is not an error.
func (d *Dispatcher) Publish(room domain.Room, event string, payload any) int {
	d.published.Add(1)
	members := d.registry.MembersOf(room)
	if len(members) == 0 {
		return 0
	}
	msg, err := EncodeFrame(event, payload)
	if err != nil {
		d.log.Error("encode event", "room", room.Key(), "event", event, "err", err)
		return 0
	}
	sent := 0
	for _, c := range members {
		if err := c.Send(msg); err != nil {
			d.failed.Add(1)
			d.log.Warn("event delivery failed", "conn_id", c.ID(), "room", room.Key(), "event", event, "err", err)
			continue
		}
		d.delivered.Add(1)
		sent++
	}
	return sent
}

// Stats returns a snapshot of delivery counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Published: d.published.Load(),
	}
}

// Registry returns the registry the dispatcher publishes through.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// EncodeFrame serializes payload under event in the wire envelope.
func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
