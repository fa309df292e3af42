package models

// Role identifies who produced a conversation turn
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn is a single entry in a conversation. Turns are values and never
// modified after creation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Entity is a named entity extracted from user text
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"` // "PERSON", ...
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Classification is the raw output of a prediction model
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Request from the HTTP or NATS boundary
type ChatRequest struct {
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message"`
}

// Response returned to every caller of the conversation engine
type ChatResponse struct {
	UserID     string   `json:"user_id,omitempty"`
	Response   string   `json:"response"`
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []Entity `json:"entities,omitempty"`
	ErrorCode  *string  `json:"error_code,omitempty"`
}

// Reserved intent labels
const (
	IntentDefault       = "default"
	IntentUnknown       = "unknown"
	IntentNoMatch       = "no_match"
	IntentNone          = "none"
	IntentError         = "error"
	IntentSearchConfirm = "unknown_google_confirm"
	IntentSearch        = "google_search"
)

// Entity labels
const (
	EntityPerson = "PERSON"
)

// Error codes
const (
	ErrorInvalidRequest = "INVALID_REQUEST"
	ErrorModelNotReady  = "MODEL_NOT_READY"
	ErrorClassification = "CLASSIFICATION_FAILED"
	ErrorInternal       = "INTERNAL_ERROR"
)

// IsUnknown reports whether the label means "no local match"
func IsUnknown(intent string) bool {
	return intent == IntentUnknown || intent == IntentNoMatch
}
