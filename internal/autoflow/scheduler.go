package autoflow

import "time"

// --- Trigger ---

// TriggerType identifies how an execution was initiated.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
)

// WebhookTrigger lets an external HTTP caller start runs of a workflow.
type WebhookTrigger struct {
	ID           string            `json:"id"`
	WorkflowID   string            `json:"workflow_id"`
	Secret       string            `json:"secret,omitempty"`
	InputMapping map[string]string `json:"input_mapping,omitempty"` // input key -> payload key
	Enabled      bool              `json:"enabled"`
	CreatedAt    time.Time         `json:"created_at"`
}

// --- Schedule ---

// ScheduledTask fires a workflow whenever its recurrence expression is due.
type ScheduledTask struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	RecurrenceExpr string         `json:"recurrence_expr"`
	Timezone       string         `json:"timezone"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	IsActive       bool           `json:"is_active"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      time.Time      `json:"next_run_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// --- Job ---

// Job is the queued unit of work for one execution attempt.
type Job struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	Attempt     int       `json:"attempt"`     // zero-based
	Generation  int       `json:"generation"`  // Execution.Generation at enqueue
	EnqueuedAt  time.Time `json:"enqueued_at"` // first enqueue; anchors the retry horizon
	NotBefore   time.Time `json:"not_before"`
}

// JobPolicy bounds a single execution: per-attempt timeout, attempt count,
// exponential backoff between attempts and an overall retry horizon.
type JobPolicy struct {
	Timeout        time.Duration `json:"timeout"         yaml:"timeout"`
	MaxAttempts    int           `json:"max_attempts"    yaml:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	BackoffFactor  float64       `json:"backoff_factor"  yaml:"backoff_factor"`
	MaxBackoff     time.Duration `json:"max_backoff"     yaml:"max_backoff"`
	RetryHorizon   time.Duration `json:"retry_horizon"   yaml:"retry_horizon"`
}

// DefaultJobPolicy returns the standard policy: 10 minute timeout, 3
// attempts, backoff 30s/60s/120s and a 30 minute horizon.
func DefaultJobPolicy() JobPolicy {
	return JobPolicy{
		Timeout:        10 * time.Minute,
		MaxAttempts:    3,
		InitialBackoff: 30 * time.Second,
		BackoffFactor:  2.0,
		MaxBackoff:     120 * time.Second,
		RetryHorizon:   30 * time.Minute,
	}
}

// --- Concurrency ---

// ConcurrencyLimits caps total in-flight runs. Runs of one workflow are
// always exclusive.
type ConcurrencyLimits struct {
	GlobalMax int `json:"global_max" yaml:"global_max"`
}

// DefaultConcurrencyLimits returns sensible defaults.
func DefaultConcurrencyLimits() ConcurrencyLimits {
	return ConcurrencyLimits{GlobalMax: 10}
}
