// Package snowflake generates 64-bit, roughly time-ordered unique ids for
// chunks. Layout: 41 bits of milliseconds since 2024-01-01 UTC, 5 bits
// datacenter id, 5 bits worker id, 12 bits sequence.
package snowflake

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01 00:00:00 UTC in Unix milliseconds.
	Epoch = 1704067200000

	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	maxWorkerID     = (1 << workerIDBits) - 1
	maxDatacenterID = (1 << datacenterIDBits) - 1
	maxSequence     = (1 << sequenceBits) - 1

	workerIDShift     = sequenceBits
	datacenterIDShift = sequenceBits + workerIDBits
	timestampShift    = sequenceBits + workerIDBits + datacenterIDBits
)

// ErrClockBackwards is returned when the wall clock moves behind the last
// generation timestamp. Callers should fail the operation rather than risk
// a duplicate id.
var ErrClockBackwards = errors.New("clock moved backwards, refusing to generate id")

// Generator produces unique ids. Safe for concurrent use.
type Generator struct {
	mu           sync.Mutex
	datacenterID int64
	workerID     int64
	sequence     int64
	lastTS       int64

	// now is swappable for tests.
	now func() int64
}

// New creates a Generator for the given datacenter and worker ids (0-31).
func New(datacenterID, workerID int64) (*Generator, error) {
	if datacenterID < 0 || datacenterID > maxDatacenterID {
		return nil, fmt.Errorf("datacenter id must be between 0 and %d, got %d", maxDatacenterID, datacenterID)
	}
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("worker id must be between 0 and %d, got %d", maxWorkerID, workerID)
	}
	return &Generator{
		datacenterID: datacenterID,
		workerID:     workerID,
		lastTS:       -1,
		now:          func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next returns a new unique id.
func (g *Generator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastTS {
		return 0, ErrClockBackwards
	}
	if ts == g.lastTS {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence exhausted within this millisecond.
			for ts <= g.lastTS {
				ts = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTS = ts

	id := ((ts - Epoch) << timestampShift) |
		(g.datacenterID << datacenterIDShift) |
		(g.workerID << workerIDShift) |
		g.sequence
	return id, nil
}

// Parts holds the decoded fields of an id.
type Parts struct {
	Time         time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Parse decodes an id into its components.
func Parse(id int64) Parts {
	ms := (id >> timestampShift) + Epoch
	return Parts{
		Time:         time.UnixMilli(ms).UTC(),
		DatacenterID: (id >> datacenterIDShift) & maxDatacenterID,
		WorkerID:     (id >> workerIDShift) & maxWorkerID,
		Sequence:     id & maxSequence,
	}
}
