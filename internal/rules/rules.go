// Package rules holds the per-vendor rule handlers the decision engine
// dispatches to. Each vendor owns an independent apply/learn pair; new
// vendors register a Handler without touching the engine.
package rules

import (
	"context"
	"math"

	"github.com/sells-group/invoice-memory/internal/model"
	"github.com/sells-group/invoice-memory/internal/store"
)

// Confidence a memory is reinforced by on confirming human feedback.
const reinforcementDelta = 0.1

// Handler is a vendor's rule pair: Apply proposes corrections during invoice
// processing, Learn turns human corrections into new or reinforced memories.
type Handler interface {
	Vendor() string
	Apply(ctx context.Context, a *ApplyContext) error
	Learn(ctx context.Context, st store.Store, c model.HumanCorrection) ([]string, error)
}

// Registry maps exact vendor names to their handlers. Matching is
// case-sensitive with no fuzzy matching.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry from the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Vendor()] = h
	}
	return r
}

// DefaultRegistry returns the registry with all built-in vendor handlers.
func DefaultRegistry() *Registry {
	return NewRegistry(NewSupplierGmbH(), NewPartsAG(), NewFreightCo())
}

// Lookup returns the handler for the vendor, or nil if none is registered.
func (r *Registry) Lookup(vendor string) Handler {
	return r.handlers[vendor]
}

// Register adds or replaces the handler for its vendor.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Vendor()] = h
}

// ApplyContext carries the working state of one invoice through the apply
// stage. The input invoice is never mutated; corrections go into Fields.
type ApplyContext struct {
	Invoice model.ExtractedInvoice
	Fields  *model.ExtractedFields

	memories    []model.MemoryEntry
	score       float64
	corrections []string
	reasoning   []string
}

// NewApplyContext seeds the working state from the extraction confidence.
func NewApplyContext(inv model.ExtractedInvoice, fields *model.ExtractedFields, memories []model.MemoryEntry) *ApplyContext {
	return &ApplyContext{
		Invoice:  inv,
		Fields:   fields,
		memories: memories,
		score:    inv.Confidence,
	}
}

// Memory returns the recalled memory with the exact key, or nil.
func (a *ApplyContext) Memory(key string) *model.MemoryEntry {
	for i := range a.memories {
		if a.memories[i].Key == key {
			return &a.memories[i]
		}
	}
	return nil
}

// AddCorrection records a human-readable description of an applied or
// proposed fix.
func (a *ApplyContext) AddCorrection(msg string) {
	a.corrections = append(a.corrections, msg)
}

// AddReasoning appends one rationale sentence.
func (a *ApplyContext) AddReasoning(msg string) {
	a.reasoning = append(a.reasoning, msg)
}

// Boost raises the confidence score by delta, clamped per addition at 1.
func (a *ApplyContext) Boost(delta float64) {
	a.score = math.Min(1, a.score+delta)
}

// Penalize lowers the confidence score by delta, floored at 0.
func (a *ApplyContext) Penalize(delta float64) {
	a.score = math.Max(0, a.score-delta)
}

func (a *ApplyContext) Score() float64        { return a.score }
func (a *ApplyContext) Corrections() []string { return a.corrections }
func (a *ApplyContext) Reasoning() []string   { return a.reasoning }

// learning helpers shared by the vendor handlers

// findMemory looks up an existing memory by exact key among the vendor's
// memories (including global ones), ignoring the confidence floor.
func findMemory(ctx context.Context, st store.Store, vendor, key string) (*model.MemoryEntry, error) {
	memories, err := st.GetVendorMemories(ctx, vendor, 0)
	if err != nil {
		return nil, err
	}
	for i := range memories {
		if memories[i].Key == key {
			return &memories[i], nil
		}
	}
	return nil, nil
}

// reinforce bumps confidence by the reinforcement delta (clamped to 1),
// increments the positive counter, and persists the entry.
func reinforce(ctx context.Context, st store.Store, entry model.MemoryEntry) (*model.MemoryEntry, error) {
	entry.Confidence = math.Min(1, entry.Confidence+reinforcementDelta)
	entry.PositiveReinforcements++
	return st.UpdateMemory(ctx, entry)
}

// createMemory inserts a new vendor memory at the rule's seed confidence.
func createMemory(ctx context.Context, st store.Store, vendor, key string, value any, confidence float64) (*model.MemoryEntry, error) {
	raw, err := model.EncodeValue(value)
	if err != nil {
		return nil, err
	}
	return st.SaveMemory(ctx, model.MemoryEntry{
		VendorName:             vendor,
		Type:                   model.MemoryTypeVendor,
		Key:                    key,
		Value:                  raw,
		Confidence:             confidence,
		PositiveReinforcements: 1,
	})
}

// correctionFor returns the first correction whose field matches one of the
// given names.
func correctionFor(c model.HumanCorrection, fields ...string) *model.FieldCorrection {
	for i := range c.Corrections {
		for _, f := range fields {
			if c.Corrections[i].Field == f {
				return &c.Corrections[i]
			}
		}
	}
	return nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
