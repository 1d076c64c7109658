package domain

// Query selects directory items. Zero-valued fields do not filter.
type Query struct {
	Resource Resource `json:"resource"`
	// Region applies to trainers only.
	Region   string   `json:"region,omitempty"`
	Search   string   `json:"search,omitempty"`
	Category string   `json:"category,omitempty"`
	AuthorID string   `json:"author_id,omitempty"`
	IDs      []string `json:"ids,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// Outcome reports what an idempotent engagement write did.
type Outcome string

const (
	// OutcomeApplied means the record was created or removed.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyExists means a record was already present; nothing changed.
	OutcomeAlreadyExists Outcome = "already_exists"
	// OutcomeNotFound means there was no record to remove; nothing changed.
	OutcomeNotFound Outcome = "not_found"
)

// ParseOutcome validates an outcome name.
func ParseOutcome(s string) (Outcome, bool) {
	switch o := Outcome(s); o {
	case OutcomeApplied, OutcomeAlreadyExists, OutcomeNotFound:
		return o, true
	default:
		return "", false
	}
}
