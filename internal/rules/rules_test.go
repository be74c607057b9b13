package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/invoice-memory/internal/model"
)

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	assert.NotNil(t, r.Lookup(VendorSupplierGmbH))
	assert.NotNil(t, r.Lookup(VendorPartsAG))
	assert.NotNil(t, r.Lookup(VendorFreightCo))
	assert.Nil(t, r.Lookup("Unknown Vendor"))
	// Matching is exact, no normalization.
	assert.Nil(t, r.Lookup("supplier gmbh"))
}

func TestApplyContext_ScoreClamping(t *testing.T) {
	a := NewApplyContext(model.ExtractedInvoice{Confidence: 0.9}, &model.ExtractedFields{}, nil)

	a.Boost(0.15)
	assert.Equal(t, 1.0, a.Score())

	a.Boost(0.15)
	assert.Equal(t, 1.0, a.Score())

	a.Penalize(0.2)
	assert.InDelta(t, 0.8, a.Score(), 1e-9)

	a.Penalize(0.9)
	assert.Equal(t, 0.0, a.Score())
}

func TestApplyContext_Memory(t *testing.T) {
	memories := []model.MemoryEntry{
		{Key: model.KeyLabelMappingLeistungsdatum, Confidence: 0.6},
		{Key: model.KeyCurrencyDefault, Confidence: 0.7},
	}
	a := NewApplyContext(model.ExtractedInvoice{}, &model.ExtractedFields{}, memories)

	assert.NotNil(t, a.Memory(model.KeyLabelMappingLeistungsdatum))
	assert.Nil(t, a.Memory(model.KeyTaxBehaviorVATInclusive))
}

func TestToISODate(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"05.03.2024", "2024-03-05", true},
		{"5.3.2024", "2024-03-05", true},
		{"31.12.2023", "2023-12-31", true},
		{"32.01.2024", "", false},
		{"2024-03-05", "", false},
		{"05.03", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := toISODate(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSkontoRegex(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		percent string
		days    string
	}{
		{"english", "2% Skonto within 10 days", "2", "10"},
		{"singular day", "3% Skonto if paid within 7 day", "3", "7"},
		{"case insensitive", "2% skonto within 14 days", "2", "14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := skontoRe.FindStringSubmatch(tt.raw)
			if assert.NotNil(t, m) {
				assert.Equal(t, tt.percent, m[1])
				assert.Equal(t, tt.days, m[2])
			}
		})
	}

	assert.Nil(t, skontoRe.FindStringSubmatch("Zahlbar innerhalb 30 Tage netto"))
}

func TestRecoverCurrency(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"eur", "Total: 1190,00 EUR incl. VAT", "EUR"},
		{"usd", "Amount due: 500 USD", "USD"},
		{"gbp", "GBP 320.00", "GBP"},
		{"none", "Total: 1190,00", ""},
		{"word boundary", "NEURAL networks", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recoverCurrency(tt.raw))
		})
	}
}

func TestCorrectionFor(t *testing.T) {
	c := model.HumanCorrection{
		Corrections: []model.FieldCorrection{
			{Field: "currency", To: "EUR"},
			{Field: "grossTotal", To: 1190.0},
		},
	}

	got := correctionFor(c, "vatBehavior", "grossTotal", "taxTotal")
	if assert.NotNil(t, got) {
		assert.Equal(t, "grossTotal", got.Field)
	}
	assert.Nil(t, correctionFor(c, "serviceDate"))
}
