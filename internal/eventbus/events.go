package eventbus

import "time"

// RequestReceived is published at pipeline step 1.
type RequestReceived struct {
	RequestID  string
	Category   string
	Complexity string
	Agent      string
	Timestamp  time.Time
}

// ModelSelected is published at pipeline step 5.
type ModelSelected struct {
	RequestID     string
	Model         string
	ValueScore    float64
	Reasoning     string
	EstimatedCost float64
	Timestamp     time.Time
}

// RequestStart is published at pipeline step 8.
type RequestStart struct {
	Model           string
	EstimatedTokens int
}

// RequestComplete is published at pipeline step 10, once per upstream call
// actually attempted: one for a short-circuited or non-escalated request,
// two for a request that escalates (the second covering the escalation
// attempt whether or not it succeeds).
type RequestComplete struct {
	Timestamp    time.Time
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	TaskType     string
	TaskCategory string
	Duration     time.Duration
	Success      bool
}

// ResponseEvaluated is published at pipeline step 12.
type ResponseEvaluated struct {
	RequestID        string
	QualityScore     float64
	Escalated        bool
	EscalationReason string
	Timestamp        time.Time
}

// CircuitBreakerStateChanged is published on an orchestrator-level circuit
// transition (pipeline step 14).
type CircuitBreakerStateChanged struct {
	PreviousState string
	NewState      string
	Failures      int
	Timestamp     time.Time
}

// CascadeStarted, CascadeStepComplete and CascadeComplete are published by
// the cascade execution mode.
type CascadeStarted struct {
	Chain       string
	QueryLength int
}

type CascadeStepComplete struct {
	Chain     string
	Step      int
	Model     string
	Quality   float64
	Escalated bool
	CostCents float64
}

type CascadeComplete struct {
	Chain          string
	FinalModel     string
	TotalSteps     int
	TotalCostCents float64
	DurationMS     int64
}
