// Package idgen mints TaskIDs and ActorIDs for the worker process's own
// submissions. It is a self-contained snowflake-style id worker: a 41-bit millisecond
// timestamp, a 10-bit worker id and a 12-bit per-millisecond sequence,
// packed into one int64 and rendered as a string so it fits iface.TaskID
// and iface.ActorID directly.
package idgen

import (
	"fmt"
	"sync"
	"time"

	"actorsub/internal/errs"
	"actorsub/internal/iface"
)

const (
	epochMS        = 1704067200000 // 2024-01-01T00:00:00Z, this domain's epoch
	workerIDBits   = 10
	sequenceBits   = 12
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
	sequenceMask   = 1<<sequenceBits - 1
	maxWorkerID    = 1<<workerIDBits - 1
)

// Generator mints monotonically-ordered ids scoped to one worker process.
type Generator struct {
	mu            sync.Mutex
	workerID      int64
	lastTimestamp int64
	sequence      int64
}

// New builds a Generator for workerID, which must fit in workerIDBits bits
// and should be unique across worker processes sharing a directory.
func New(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, errs.ErrUnexpectedState(fmt.Sprintf("worker-id-%d", workerID), "out-of-range")
	}
	return &Generator{workerID: workerID, lastTimestamp: -1}, nil
}

func (g *Generator) next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := nowMS()
	if ts < g.lastTimestamp {
		return 0, errs.ErrUnexpectedState("clock", "moved-backwards")
	}
	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			for ts <= g.lastTimestamp {
				ts = nowMS()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts
	return (ts-epochMS)<<timestampShift | g.workerID<<workerIDShift | g.sequence, nil
}

func nowMS() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// NextTaskID mints a new TaskID.
func (g *Generator) NextTaskID() (iface.TaskID, error) {
	id, err := g.next()
	if err != nil {
		return "", err
	}
	return iface.TaskID(fmt.Sprintf("task-%d", id)), nil
}

// NextActorID mints a new ActorID.
func (g *Generator) NextActorID() (iface.ActorID, error) {
	id, err := g.next()
	if err != nil {
		return "", err
	}
	return iface.ActorID(fmt.Sprintf("actor-%d", id)), nil
}
