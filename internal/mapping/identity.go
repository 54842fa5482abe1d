package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUIDGenerator mints RFC 4122 v4 identities. It is the default
// IdentityGenerator for any mapping that does not need human-readable or
// ordered ids.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string { return uuid.NewString() }

func (UUIDGenerator) IsIdentifier(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

// SequentialGenerator mints small, predictable ids ("<prefix>-1",
// "<prefix>-2", ...). It exists for tests and fixtures where stable,
// readable ids make assertions easier to read than UUIDs would.
type SequentialGenerator struct {
	prefix string
	n      int64
}

func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

func (g *SequentialGenerator) Generate() string {
	n := atomic.AddInt64(&g.n, 1)
	return fmt.Sprintf("%s-%d", g.prefix, n)
}

func (g *SequentialGenerator) IsIdentifier(v string) bool {
	rest, ok := strings.CutPrefix(v, g.prefix+"-")
	if !ok {
		return false
	}
	_, err := strconv.ParseInt(rest, 10, 64)
	return err == nil
}
