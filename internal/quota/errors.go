package quota

import "errors"

// Enforcement outcomes. Denials are expected, user-facing conditions; the
// HTTP layer maps each to its own status and remediation message.
// ErrAccountInconsistent is not a denial — it means a referenced user or
// organization record is missing, which is a data-integrity fault.
var (
	ErrNegativeUnits        = errors.New("units to consume cannot be negative")
	ErrAccountInconsistent  = errors.New("account data inconsistency")
	ErrOrgQuotaExceeded     = errors.New("organization monthly quota limit reached")
	ErrQuotaExceeded        = errors.New("monthly token quota exceeded")
	ErrMessageLimitExceeded = errors.New("monthly message limit exceeded")
)
