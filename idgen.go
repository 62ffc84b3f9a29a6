package exchange

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
)

// Clock abstracts the current time so the timestamp inside each id's xid
// suffix can be pinned in tests without faking the xid package itself. The
// suffix's counter bytes still come from xid's process-wide counter, so ids
// differ even when the clock is fixed.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// IDGenerator synthesizes tradable entry ids. The default implementation
// follows the source's derivation of an order id from the submitting
// user, product and price, appended with a monotonic sequence number and
// an xid suffix so ids stay globally unique even if the sequence counter
// is reset, e.g. across process restarts in a test harness.
type IDGenerator interface {
	NextID(user, product string, price *Price) string
}

type sequenceIDGenerator struct {
	clock Clock
	seq   atomic.Uint64
}

func newSequenceIDGenerator(clock Clock) *sequenceIDGenerator {
	return &sequenceIDGenerator{clock: clock}
}

// NewIDGenerator returns the default IDGenerator, timestamped off the real
// wall clock.
func NewIDGenerator() IDGenerator {
	return newSequenceIDGenerator(realClock{})
}

func (g *sequenceIDGenerator) NextID(user, product string, price *Price) string {
	n := g.seq.Add(1)
	suffix := xid.NewWithTime(g.clock.Now())
	return fmt.Sprintf("%s%s%s%d-%s", user, product, price.String(), n, suffix.String())
}
