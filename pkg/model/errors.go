package model

import "errors"

var (
	// ErrMalformedInput is returned when an upload cannot be parsed as a table
	ErrMalformedInput = errors.New("malformed input")

	// ErrNoNumericColumns is returned when a dataset has nothing to plot
	ErrNoNumericColumns = errors.New("no numeric columns")

	// ErrSessionNotFound is returned for unknown or expired sessions
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSelection wraps every axis/color selection problem
	ErrInvalidSelection = errors.New("invalid selection")

	ErrUnknownColumn = errors.New("unknown column")
	ErrNotNumeric    = errors.New("column is not numeric")
)

// Messages shown to the user for each error class
const (
	MsgMalformedInput   = "Could not read the file. Make sure the CSV file is correctly formatted."
	MsgNoNumericColumns = "The CSV file must contain at least one numeric column."
	MsgSessionNotFound  = "The session has expired. Upload the file again."
	MsgInvalidSelection = "The selected columns cannot be plotted."
	MsgReportFailed     = "The PDF report could not be generated."
)

// UserMessage maps an error to the message shown to the user
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoNumericColumns):
		return MsgNoNumericColumns
	case errors.Is(err, ErrMalformedInput):
		return MsgMalformedInput
	case errors.Is(err, ErrSessionNotFound):
		return MsgSessionNotFound
	case errors.Is(err, ErrInvalidSelection):
		return MsgInvalidSelection
	default:
		return MsgReportFailed
	}
}
