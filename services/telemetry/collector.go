package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"luxmon-go/bus"
	"luxmon-go/services/exposure"
	"luxmon-go/types"
)

// Status is the /status document.
type Status struct {
	RunID       string              `json:"run_id"`
	Device      string              `json:"device"`
	Started     time.Time           `json:"started"`
	LastTick    time.Time           `json:"last_tick,omitempty"`
	LastReading *types.Reading      `json:"last_reading,omitempty"`
	Link        *types.LinkState    `json:"link,omitempty"`
	LastSync    *types.SyncResult   `json:"last_sync,omitempty"`
	Session     *types.SessionState `json:"session,omitempty"`
	Window      *exposure.Snapshot  `json:"window,omitempty"`
	Summary     *exposure.Summary   `json:"summary,omitempty"`
	Skipped     uint64              `json:"skipped"`
}

// Collector folds bus events into Metrics and a Status snapshot.
type Collector struct {
	metrics *Metrics
	log     zerolog.Logger

	mu             sync.RWMutex
	status         Status
	lastReconnects int
}

func NewCollector(device string, m *Metrics, log zerolog.Logger) *Collector {
	return &Collector{
		metrics: m,
		log:     log.With().Str("component", "telemetry").Logger(),
		status: Status{
			RunID:   uuid.NewString(),
			Device:  device,
			Started: time.Now().UTC(),
		},
	}
}

// Run subscribes to every topic on conn and handles messages until ctx ends.
func (c *Collector) Run(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(bus.T("#"))
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			c.Handle(msg)
		}
	}
}

// Handle applies one bus message. Unknown topics and payloads are ignored.
func (c *Collector) Handle(msg *bus.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := msg.Payload.(type) {
	case types.Reading:
		c.metrics.Lux.Set(p.Lux)
		class := "diffuse"
		if p.Direct {
			class = "direct"
		}
		c.metrics.Samples.WithLabelValues(class).Inc()
		c.status.LastReading = &p

	case types.Skip:
		c.metrics.SamplesSkipped.WithLabelValues(string(p.Reason)).Inc()
		c.status.Skipped++

	case exposure.Snapshot:
		c.metrics.DirectSeconds.Set(float64(p.DirectSeconds))
		boolGauge(c.metrics.WindowComplete, p.State == exposure.Complete.String())
		c.metrics.WindowRemaining.Set(p.RemainingSeconds)
		c.status.Window = &p

	case exposure.Summary:
		c.status.Summary = &p
		c.log.Info().Str("exposure", p.Exposure()).Msg("window summary")

	case types.LinkState:
		boolGauge(c.metrics.LinkUp, p.Link == types.LinkUp)
		if d := p.Reconnects - c.lastReconnects; d > 0 {
			c.metrics.Reconnects.Add(float64(d))
			c.lastReconnects = p.Reconnects
		}
		c.status.Link = &p

	case types.SyncResult:
		result := "ok"
		if !p.OK {
			result = "failed"
		}
		c.metrics.TimeSyncs.WithLabelValues(result).Inc()
		c.status.LastSync = &p

	case types.SessionState:
		boolGauge(c.metrics.SessionUp, p.Connected)
		c.status.Session = &p

	default:
		if msg.Topic.Equal(bus.TopicTick) {
			c.status.LastTick = msg.At
		}
	}
}

// Snapshot returns a copy of the current status.
func (c *Collector) Snapshot() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Healthy reports whether the loop has ticked within maxAge of now.
func (c *Collector) Healthy(now time.Time, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.status.LastTick.IsZero() && now.Sub(c.status.LastTick) <= maxAge
}
