package chat

// CompletionRequest is a single chat turn submitted for asynchronous
// processing by assistant workers.
type CompletionRequest struct {
	Message string `json:"message" validate:"required,min=1,max=32000"`
	// MaxTokens caps the generated reply. Zero means the server default.
	MaxTokens int64 `json:"max_tokens" validate:"omitempty,min=1,max=8192"`
}

type CompletionAccepted struct {
	RequestID      string `json:"request_id"`
	EstimatedUnits int64  `json:"estimated_units"`
	Status         string `json:"status"`
}

// defaultReplyAllowance is charged for the generated reply when the client
// does not cap it.
const defaultReplyAllowance = 512

// EstimateUnits approximates the token cost of a turn before the model runs:
// roughly 4 characters per prompt token plus the reply allowance. The real
// count is reconciled by workers after generation; enforcement only needs a
// conservative pre-charge.
func EstimateUnits(message string, maxTokens int64) int64 {
	promptTokens := int64(len(message)+3) / 4
	if promptTokens < 1 {
		promptTokens = 1
	}
	reply := maxTokens
	if reply <= 0 {
		reply = defaultReplyAllowance
	}
	return promptTokens + reply
}
