// Package faults keeps the append-only record of synthetic fault
// analysis runs. Records are created once and never mutated or deleted.
package faults

import (
	"math/rand"
	"sync"
	"time"
)

// Bounds of the synthetic fault draw. Impedance ohms, current amps,
// clearance seconds.
const (
	impedanceMin = 0.1
	impedanceMax = 1.0
	currentMin   = 1000.0
	currentMax   = 10000.0
	clearanceMin = 0.1
	clearanceMax = 0.5
)

// Record is one immutable fault analysis result.
type Record struct {
	Type               string    `json:"fault_type"`
	Location           string    `json:"fault_location"`
	Impedance          float64   `json:"fault_impedance"`
	FaultCurrent       float64   `json:"fault_current"`
	ProtectionOperated bool      `json:"protection_operation"`
	ClearanceTime      float64   `json:"clearance_time"`
	Timestamp          time.Time `json:"timestamp"`
}

// Ledger is the append-only store of fault records.
type Ledger struct {
	mux     *sync.Mutex
	rng     *rand.Rand
	records []Record
}

// NewLedger returns an empty Ledger
func NewLedger(seed int64) *Ledger {
	return &Ledger{&sync.Mutex{}, rand.New(rand.NewSource(seed)), nil}
}

// Record draws synthetic impedance, current and clearance values from
// the bounded distribution, appends the record and returns it.
func (l *Ledger) Record(faultType, location string, now time.Time) Record {
	l.mux.Lock()
	defer l.mux.Unlock()
	rec := Record{
		Type:               faultType,
		Location:           location,
		Impedance:          l.uniform(impedanceMin, impedanceMax),
		FaultCurrent:       l.uniform(currentMin, currentMax),
		ProtectionOperated: true,
		ClearanceTime:      l.uniform(clearanceMin, clearanceMax),
		Timestamp:          now,
	}
	l.records = append(l.records, rec)
	return rec
}

// List returns a copy of all records in append order. It is the only
// read path; there is no update or delete.
func (l *Ledger) List() []Record {
	l.mux.Lock()
	defer l.mux.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Count returns the number of recorded faults.
func (l *Ledger) Count() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return len(l.records)
}

func (l *Ledger) uniform(min, max float64) float64 {
	return min + l.rng.Float64()*(max-min)
}
