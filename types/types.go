package types

import "time"

// ---- Link state (retained) ----

// Link is the network link state reported on link/state.
type Link string

const (
	LinkUp   Link = "up"
	LinkDown Link = "down"
)

type LinkState struct {
	Link       Link      `json:"link"`
	Reconnects int       `json:"reconnects"`
	TS         time.Time `json:"ts"`
}

// ---- Readings ----

// Reading is one classified lux sample. It is published once and never stored.
type Reading struct {
	TS     time.Time `json:"ts"`
	Lux    float64   `json:"lux"`
	Direct bool      `json:"direct"`
	High   bool      `json:"high"`
}

// SkipReason says why a tick produced no sample.
type SkipReason string

const (
	SkipNotSynced  SkipReason = "not_synced"
	SkipSensorRead SkipReason = "sensor_read"
)

type Skip struct {
	Reason SkipReason `json:"reason"`
	TS     time.Time  `json:"ts"`
}

// ---- Time sync ----

type SyncResult struct {
	OK      bool      `json:"ok"`
	Initial bool      `json:"initial"`
	TS      time.Time `json:"ts"`
}

// ---- Remote session (retained) ----

type SessionState struct {
	Connected bool      `json:"connected"`
	Peer      string    `json:"peer,omitempty"`
	TS        time.Time `json:"ts"`
}
