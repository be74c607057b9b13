// Package engine implements the recall, apply, decide, learn pipeline over
// vendor memories.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-memory/internal/model"
	"github.com/sells-group/invoice-memory/internal/rules"
	"github.com/sells-group/invoice-memory/internal/store"
)

const (
	// Memories below this confidence are not trusted enough to influence
	// decisions.
	minRecallConfidence = 0.4
	// Invoices at or above this score with no open corrections skip review.
	autoAcceptThreshold = 0.85
	// Subtracted from the score when a probable duplicate is found.
	duplicatePenalty = 0.2
)

// Engine orchestrates invoice processing and correction learning. Calls are
// synchronous; callers that need strict per-vendor consistency serialize
// calls per vendor themselves.
type Engine struct {
	store    store.Store
	registry *rules.Registry
}

// New creates an Engine. A nil registry selects the built-in vendor handlers.
func New(st store.Store, registry *rules.Registry) *Engine {
	if registry == nil {
		registry = rules.DefaultRegistry()
	}
	return &Engine{store: st, registry: registry}
}

// Process runs the four-stage pipeline for one extracted invoice. It only
// fails on storage errors; pattern mismatches and unresolvable conditions
// surface in the result's reasoning instead.
func (e *Engine) Process(ctx context.Context, inv model.ExtractedInvoice) (*model.DecisionResult, error) {
	trail := make([]model.AuditEntry, 0, 4)
	audit := func(step model.AuditStep, details string) error {
		entry := model.AuditEntry{Step: step, Timestamp: time.Now().UTC(), Details: details}
		if err := e.store.RecordAudit(ctx, inv.InvoiceID, entry); err != nil {
			return err
		}
		trail = append(trail, entry)
		return nil
	}

	// 1) recall
	memories, err := e.store.GetVendorMemories(ctx, inv.Vendor, minRecallConfidence)
	if err != nil {
		return nil, err
	}
	if err := audit(model.StepRecall, fmt.Sprintf("Recalled %d memories for vendor %s", len(memories), inv.Vendor)); err != nil {
		return nil, err
	}

	// 2) apply
	fields := inv.Fields.Clone()
	actx := rules.NewApplyContext(inv, &fields, memories)
	if h := e.registry.Lookup(inv.Vendor); h != nil {
		if err := h.Apply(ctx, actx); err != nil {
			return nil, err
		}
	}
	if err := audit(model.StepApply, fmt.Sprintf("Applied vendor memories for %s; proposed %d corrections.", inv.Vendor, len(actx.Corrections()))); err != nil {
		return nil, err
	}

	// 3) duplicate check, all vendors
	if err := e.store.SaveInvoiceMeta(ctx, inv.InvoiceID, inv.Vendor, inv.Fields.InvoiceNumber, inv.Fields.InvoiceDate); err != nil {
		return nil, err
	}
	dup, err := e.store.FindDuplicate(ctx, inv.InvoiceID, inv.Vendor, inv.Fields.InvoiceNumber, inv.Fields.InvoiceDate)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		actx.AddCorrection(fmt.Sprintf("Flagged as possible duplicate of %s", dup.ID))
		actx.Penalize(duplicatePenalty)
		actx.AddReasoning(fmt.Sprintf("Detected potential duplicate (same vendor + invoiceNumber + close dates) with %s.", dup.ID))
		if err := audit(model.StepApply, fmt.Sprintf("Duplicate check: found possible duplicate %s.", dup.ID)); err != nil {
			return nil, err
		}
	}

	// 4) decide
	score := actx.Score()
	requiresReview := true
	if score >= autoAcceptThreshold && len(actx.Corrections()) == 0 {
		requiresReview = false
		actx.AddReasoning("High confidence and no unresolved issues → auto-accept.")
	} else {
		actx.AddReasoning("Invoice requires human review due to missing or low-confidence rules or corrections.")
	}
	if err := audit(model.StepDecide, fmt.Sprintf("requiresHumanReview=%t, confidenceScore=%.2f", requiresReview, score)); err != nil {
		return nil, err
	}

	return &model.DecisionResult{
		NormalizedFields:    fields,
		ProposedCorrections: actx.Corrections(),
		RequiresHumanReview: requiresReview,
		Reasoning:           strings.Join(actx.Reasoning(), " "),
		ConfidenceScore:     score,
		MemoryUpdates:       []string{},
		AuditTrail:          trail,
	}, nil
}

// Learn dispatches a human correction to the matching vendor handler and
// returns descriptions of the memories it created or reinforced. Vendors
// without a handler are logged and produce no updates.
func (e *Engine) Learn(ctx context.Context, c model.HumanCorrection) ([]string, error) {
	h := e.registry.Lookup(c.Vendor)
	if h == nil {
		zap.L().Info("no learning handler for vendor",
			zap.String("vendor", c.Vendor),
			zap.String("invoice_id", c.InvoiceID),
		)
		return nil, nil
	}
	return h.Learn(ctx, e.store, c)
}
