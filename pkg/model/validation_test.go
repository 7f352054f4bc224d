package model

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRecipientDomains(t *testing.T) {
	tests := []struct {
		name       string
		recipients Recipients
		allowed    []string
		wantErr    string
	}{
		{
			name:       "no whitelist",
			recipients: Recipients{To: []string{"anyone@anywhere.io"}},
		},
		{
			name:       "to, cc and bcc all allowed",
			recipients: Recipients{To: []string{"a@example.com"}, CC: []string{"b@corp.org"}, BCC: []string{"c@example.com"}},
			allowed:    []string{"example.com", "corp.org"},
		},
		{
			name:       "wildcard covers base and nested subdomains",
			recipients: Recipients{To: []string{"a@example.com", "b@eu.mail.example.com"}},
			allowed:    []string{"*.example.com"},
		},
		{
			name:       "domain compared case-insensitively",
			recipients: Recipients{To: []string{"Analyst@Example.COM"}},
			allowed:    []string{" example.com "},
		},
		{
			name:       "blank entries skipped",
			recipients: Recipients{To: []string{"", "  ", "a@example.com"}},
			allowed:    []string{"example.com"},
		},
		{
			name:       "bcc outside whitelist",
			recipients: Recipients{To: []string{"a@example.com"}, BCC: []string{"leak@other.net"}},
			allowed:    []string{"example.com"},
			wantErr:    "'other.net' is not allowed",
		},
		{
			name:       "wildcard does not match lookalike",
			recipients: Recipients{To: []string{"a@badexample.com"}},
			allowed:    []string{"*.example.com"},
			wantErr:    "badexample.com",
		},
		{
			name:       "missing at sign",
			recipients: Recipients{To: []string{"example.com"}},
			allowed:    []string{"example.com"},
			wantErr:    "invalid email address format",
		},
		{
			name:       "two at signs",
			recipients: Recipients{To: []string{"a@b@example.com"}},
			allowed:    []string{"example.com"},
			wantErr:    "invalid email address format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecipientDomains(tt.recipients, tt.allowed)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEmailDomain(t *testing.T) {
	for email, want := range map[string]string{
		"user@Example.com": "example.com",
		"user@ sub.x.org ": "sub.x.org",
		"no-at-sign":       "",
		"a@b@c":            "",
		"trailing@":        "",
	} {
		if got := emailDomain(email); got != want {
			t.Errorf("emailDomain(%q) = %q, want %q", email, got, want)
		}
	}
}

func TestValidateCronExpression(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr string
	}{
		{expr: "* * * * *"},
		{expr: "*/5 * * * *"},
		{expr: "0 3 * * 1-5"},
		{expr: "", wantErr: "cannot be empty"},
		{expr: "0 0 *", wantErr: "invalid cron expression"},
		{expr: "sweep often", wantErr: "invalid cron expression"},
		{expr: "61 * * * *", wantErr: "invalid cron expression"},
		{expr: "0 25 * * *", wantErr: "invalid cron expression"},
		{expr: "0 0 0 * * *", wantErr: "invalid cron expression"},
		{expr: "0 0 0 1 1 * 2030", wantErr: "invalid cron expression"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpression(tt.expr)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func newSelectionDataset() *Dataset {
	return &Dataset{
		Name: "iris.csv",
		Rows: 2,
		Columns: []*Column{
			{Name: "sepal_length", Kind: KindNumeric, Values: []float64{5.1, 4.9}, Text: []string{"5.1", "4.9"}, Missing: []bool{false, false}},
			{Name: "sepal_width", Kind: KindNumeric, Values: []float64{3.5, 3.0}, Text: []string{"3.5", "3.0"}, Missing: []bool{false, false}},
			{Name: "species", Kind: KindCategorical, Text: []string{"setosa", "setosa"}, Missing: []bool{false, false}},
		},
	}
}

func TestValidateSelection(t *testing.T) {
	ds := newSelectionDataset()

	tests := []struct {
		name        string
		selection   Selection
		expectError bool
		wrapped     error
	}{
		{
			name:      "numeric axes without color",
			selection: Selection{X: "sepal_length", Y: "sepal_width", Color: NoColor},
		},
		{
			name:      "empty color means no color",
			selection: Selection{X: "sepal_length", Y: "sepal_length"},
		},
		{
			name:      "categorical color",
			selection: Selection{X: "sepal_length", Y: "sepal_width", Color: "species"},
		},
		{
			name:      "numeric color",
			selection: Selection{X: "sepal_length", Y: "sepal_width", Color: "sepal_width"},
		},
		{
			name:        "categorical x axis",
			selection:   Selection{X: "species", Y: "sepal_width", Color: NoColor},
			expectError: true,
			wrapped:     ErrNotNumeric,
		},
		{
			name:        "unknown y axis",
			selection:   Selection{X: "sepal_length", Y: "petal_width", Color: NoColor},
			expectError: true,
			wrapped:     ErrUnknownColumn,
		},
		{
			name:        "unknown color column",
			selection:   Selection{X: "sepal_length", Y: "sepal_width", Color: "genus"},
			expectError: true,
			wrapped:     ErrUnknownColumn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelection(ds, tt.selection)
			if !tt.expectError {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error but got none")
			}
			if !errors.Is(err, ErrInvalidSelection) {
				t.Errorf("error %v does not wrap ErrInvalidSelection", err)
			}
			if !errors.Is(err, tt.wrapped) {
				t.Errorf("error %v does not wrap %v", err, tt.wrapped)
			}
			if UserMessage(err) != MsgInvalidSelection {
				t.Errorf("unexpected user message %q", UserMessage(err))
			}
		})
	}
}

func TestDefaultSelection(t *testing.T) {
	ds := newSelectionDataset()

	sel, err := DefaultSelection(ds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.X != "sepal_length" || sel.Y != "sepal_width" || sel.Color != NoColor {
		t.Errorf("unexpected default selection: %+v", sel)
	}

	ds.Columns = ds.Columns[:1]
	sel, err = DefaultSelection(ds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.X != "sepal_length" || sel.Y != "sepal_length" {
		t.Errorf("single numeric column should be used for both axes, got %+v", sel)
	}

	ds.Columns = []*Column{{Name: "species", Kind: KindCategorical, Text: []string{"a"}, Missing: []bool{false}}}
	if _, err := DefaultSelection(ds); !errors.Is(err, ErrNoNumericColumns) {
		t.Errorf("expected ErrNoNumericColumns, got %v", err)
	}
	if UserMessage(ErrNoNumericColumns) != "The CSV file must contain at least one numeric column." {
		t.Errorf("unexpected message: %q", UserMessage(ErrNoNumericColumns))
	}
}

func TestColorOptions(t *testing.T) {
	opts := ColorOptions(newSelectionDataset())
	want := []string{NoColor, "sepal_length", "sepal_width", "species"}
	if len(opts) != len(want) {
		t.Fatalf("expected %d options, got %d", len(want), len(opts))
	}
	for i := range want {
		if opts[i] != want[i] {
			t.Errorf("option %d: expected %q, got %q", i, want[i], opts[i])
		}
	}
}
