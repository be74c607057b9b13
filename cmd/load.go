package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/invoice-memory/internal/model"
)

// loadInvoices reads a JSON or YAML file containing a list of extracted
// invoices and validates each one at the boundary.
func loadInvoices(path string) ([]model.ExtractedInvoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var invoices []model.ExtractedInvoice
	if err := decodeByExt(path, data, &invoices); err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if err := inv.Validate(); err != nil {
			return nil, eris.Wrapf(err, "%s: invoice %s", path, inv.InvoiceID)
		}
	}
	return invoices, nil
}

// loadCorrections reads a JSON or YAML file containing a list of human
// corrections.
func loadCorrections(path string) ([]model.HumanCorrection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var corrections []model.HumanCorrection
	if err := decodeByExt(path, data, &corrections); err != nil {
		return nil, err
	}
	return corrections, nil
}

func decodeByExt(path string, data []byte, v any) error {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, v); err != nil {
			return eris.Wrapf(err, "decode yaml %s", path)
		}
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "decode json %s", path)
	}
	return nil
}
