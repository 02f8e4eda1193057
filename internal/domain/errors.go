package domain

import "errors"

// Sentinel errors for domain-level error handling.
// Callers match them with errors.Is; wrapped errors carry the offending ids.
var (
	ErrAgentNotFound   = errors.New("agent_not_found")
	ErrCompanyNotFound = errors.New("company_not_found")
	ErrUnspendable     = errors.New("unspendable")
	ErrUnDoable        = errors.New("undoable")
	ErrNoData          = errors.New("no_data")
	ErrLotsClosed      = errors.New("lots_closed")
	ErrOfferNotFound   = errors.New("offer_not_found")
	ErrAgentExists     = errors.New("agent_already_exists")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
