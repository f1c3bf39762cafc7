package core

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces unique identifiers for newly created entities. The
// prefix carries the entity family ("A" for animals, "TSK-" for tasks).
type IDGenerator interface {
	Next(prefix string) string
}

// SequenceIDs issues monotonically increasing identifiers from a shared
// counter, matching the numbering scheme of the seed dataset.
type SequenceIDs struct {
	n atomic.Int64
}

// NewSequenceIDs returns a generator whose first issued number is seed+1.
func NewSequenceIDs(seed int64) *SequenceIDs {
	g := &SequenceIDs{}
	g.n.Store(seed)
	return g
}

func (g *SequenceIDs) Next(prefix string) string {
	return prefix + strconv.FormatInt(g.n.Add(1), 10)
}

// UUIDIDs issues random identifiers, suitable for deployments where multiple
// writers mint ids without a shared counter.
type UUIDIDs struct{}

func (UUIDIDs) Next(prefix string) string {
	return prefix + uuid.NewString()
}

var (
	_ IDGenerator = (*SequenceIDs)(nil)
	_ IDGenerator = UUIDIDs{}
)
