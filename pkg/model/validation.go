package model

import (
	"fmt"
	"strings"

	"github.com/gorhill/cronexpr"
	"github.com/robfig/cron/v3"
)

// ValidateRecipientDomains checks every recipient against the domain whitelist.
// An empty whitelist allows any domain; "*.example.com" also matches example.com.
func ValidateRecipientDomains(recipients Recipients, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}

	for _, email := range recipients.All() {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		domain := emailDomain(email)
		if domain == "" {
			return fmt.Errorf("invalid email address format: %s", email)
		}
		if !domainAllowed(domain, allowedDomains) {
			return fmt.Errorf("email domain '%s' is not allowed (email: %s). Allowed domains: %v", domain, email, allowedDomains)
		}
	}
	return nil
}

// emailDomain returns the lower-cased domain of an address, or "" when the
// address does not have exactly one @ followed by a domain
func emailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(domain))
}

func domainAllowed(domain string, allowedDomains []string) bool {
	for _, allowed := range allowedDomains {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if base, wildcard := strings.CutPrefix(allowed, "*."); wildcard {
			if domain == base || strings.HasSuffix(domain, "."+base) {
				return true
			}
			continue
		}
		if domain == allowed {
			return true
		}
	}
	return false
}

// ValidateCronExpression validates the session sweep schedule.
// Five-field expressions are expected; cronexpr reads six fields as minute..year.
func ValidateCronExpression(cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}

	if _, err := cronexpr.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression '%s': %v", cronExpr, err)
	}
	// The janitor schedules with robfig's standard parser, which only takes five fields
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression '%s': %v", cronExpr, err)
	}
	return nil
}

// DefaultSelection picks the initial axes: the first numeric column for x,
// the second (or the first again) for y, and no color.
func DefaultSelection(ds *Dataset) (Selection, error) {
	numeric := ds.NumericColumns()
	if len(numeric) == 0 {
		return Selection{}, ErrNoNumericColumns
	}
	y := numeric[0]
	if len(numeric) > 1 {
		y = numeric[1]
	}
	return Selection{X: numeric[0], Y: y, Color: NoColor}, nil
}

// ValidateSelection checks that x and y reference numeric columns and that
// color is either NoColor or an existing column.
func ValidateSelection(ds *Dataset, sel Selection) error {
	for _, axis := range []struct{ name, column string }{{"x", sel.X}, {"y", sel.Y}} {
		col, ok := ds.Column(axis.column)
		if !ok {
			return fmt.Errorf("%w: %s axis: %w '%s'", ErrInvalidSelection, axis.name, ErrUnknownColumn, axis.column)
		}
		if !col.IsNumeric() {
			return fmt.Errorf("%w: %s axis: %w '%s'", ErrInvalidSelection, axis.name, ErrNotNumeric, axis.column)
		}
	}

	if sel.HasColor() {
		if _, ok := ds.Column(sel.Color); !ok {
			return fmt.Errorf("%w: color: %w '%s'", ErrInvalidSelection, ErrUnknownColumn, sel.Color)
		}
	}

	return nil
}

// ColorOptions returns the color dropdown entries: NoColor followed by every column
func ColorOptions(ds *Dataset) []string {
	return append([]string{NoColor}, ds.ColumnNames()...)
}
