package pricing

import "strings"

type Code string

const (
	QuantityTooLow      Code = "quantity_too_low"
	QuantityUnavailable Code = "quantity_unavailable"
	DueDateInvalid      Code = "due_date_invalid"
	DueDateTooFar       Code = "due_date_too_far"
)

const (
	FieldQuantity = "quantity"
	FieldDueDate  = "due_date"
)

const (
	MsgQuantityTooLow      = "Quantity must be greater than zero."
	MsgQuantityUnavailable = "There are not enough copies in stock."
	MsgDueDateInvalid      = "Due date must be after today."
	MsgDueDateTooFar       = "Due date cannot be more than %d days away."
)

// Rejection explains why a proposed transaction was refused.
type Rejection struct {
	Field   string
	Code    Code
	Message string
}

func (r *Rejection) Error() string {
	return r.Field + ": " + string(r.Code)
}

// Rejections is returned by lifecycle operations so handlers can render
// every offending field at once.
type Rejections []Rejection

func (r Rejections) Error() string {
	parts := make([]string, 0, len(r))
	for _, rej := range r {
		parts = append(parts, rej.Field+": "+string(rej.Code))
	}
	return "rejected: " + strings.Join(parts, ", ")
}

// Has reports whether any rejection carries code.
func (r Rejections) Has(code Code) bool {
	for _, rej := range r {
		if rej.Code == code {
			return true
		}
	}
	return false
}

// Reject wraps a single rejection as an error.
func Reject(rej *Rejection) error {
	if rej == nil {
		return nil
	}
	return Rejections{*rej}
}
