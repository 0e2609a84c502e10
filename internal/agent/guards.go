package agent

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"

	"github.com/flemzord/agentbridge/internal/provider"
)

// guards holds the per-run stop conditions other than the iteration cap:
// the token budget and the repeated-call detector. A zero limit disables
// the matching check. One Run owns one guards value.
type guards struct {
	budget int
	usage  provider.TokenUsage

	repeatLimit int
	calls       map[[sha256.Size]byte]int
}

func newGuards(budget, repeatLimit int) *guards {
	return &guards{budget: budget, repeatLimit: repeatLimit, calls: make(map[[sha256.Size]byte]int)}
}

func (g *guards) charge(u provider.TokenUsage) { g.usage = g.usage.Add(u) }

func (g *guards) overBudget() bool {
	return g.budget > 0 && g.usage.TotalTokens >= g.budget
}

// repeated counts a tool call and reports whether the same name and
// arguments have now been seen repeatLimit times in this run.
func (g *guards) repeated(name string, args json.RawMessage) bool {
	if g.repeatLimit <= 0 {
		return false
	}
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(canonicalJSON(args))
	var key [sha256.Size]byte
	h.Sum(key[:0])
	g.calls[key]++
	return g.calls[key] >= g.repeatLimit
}

// canonicalJSON re-encodes args with sorted object keys so that key order
// and whitespace do not matter. Numbers keep their literal text. Invalid
// JSON is returned as is.
func canonicalJSON(args json.RawMessage) []byte {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return args
	}
	out, err := json.Marshal(v)
	if err != nil {
		return args
	}
	return out
}
