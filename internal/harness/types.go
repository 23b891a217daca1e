package harness

// Trace event types.
const (
	EventRequest = "request"
	EventPage    = "page"
	EventError   = "error"
)

// TraceEvent records one observable step of a scenario run.
type TraceEvent struct {
	Step        int      `json:"step"`
	Type        string   `json:"type"`
	QueryID     string   `json:"query_id,omitempty"`
	Indices     []string `json:"indices,omitempty"`
	Aggregating bool     `json:"aggregating,omitempty"`
	Scroll      bool     `json:"scroll,omitempty"`
	Offset      int64    `json:"offset,omitempty"`
	Rows        int      `json:"rows,omitempty"`
	Total       int64    `json:"total,omitempty"`
	Code        string   `json:"code,omitempty"`
}

// StepResult holds what one step produced.
type StepResult struct {
	Columns []string
	Rows    [][]any
	Pages   int
	Code    string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectations.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	Steps []StepResult `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
