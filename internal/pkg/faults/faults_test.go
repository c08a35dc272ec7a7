package faults

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestRecordDrawsBoundedValues(t *testing.T) {
	l := NewLedger(1)
	now := time.Now()

	for i := 0; i < 100; i++ {
		rec := l.Record("three_phase", "Bus220kV", now)
		assert.Assert(t, rec.Impedance >= impedanceMin && rec.Impedance <= impedanceMax,
			"impedance out of bounds: %v", rec.Impedance)
		assert.Assert(t, rec.FaultCurrent >= currentMin && rec.FaultCurrent <= currentMax,
			"fault current out of bounds: %v", rec.FaultCurrent)
		assert.Assert(t, rec.ClearanceTime >= clearanceMin && rec.ClearanceTime <= clearanceMax,
			"clearance time out of bounds: %v", rec.ClearanceTime)
		assert.Assert(t, rec.ProtectionOperated)
		assert.Equal(t, rec.Timestamp, now)
	}
	assert.Equal(t, l.Count(), 100)
}

func TestListIsAppendOrderedCopy(t *testing.T) {
	l := NewLedger(1)
	l.Record("line_to_ground", "TX1_400_220", time.Now())
	l.Record("line_to_line", "DTX1_220_33", time.Now())

	records := l.List()
	assert.Equal(t, len(records), 2)
	assert.Equal(t, records[0].Type, "line_to_ground")
	assert.Equal(t, records[1].Type, "line_to_line")

	// mutating the returned slice must not reach the ledger
	records[0].Type = "mutated"
	assert.Equal(t, l.List()[0].Type, "line_to_ground")
}

func TestEmptyLedger(t *testing.T) {
	l := NewLedger(1)
	assert.Equal(t, l.Count(), 0)
	assert.Equal(t, len(l.List()), 0)
}
