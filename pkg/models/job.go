package models

import "time"

// JobStatus is the terminal-aware status of a generation job (spec.md §3).
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a status never transitions further.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// RequestKind selects which Orchestrator strategy a job uses.
type RequestKind string

const (
	RequestPlace         RequestKind = "place"
	RequestQuestion      RequestKind = "question"
	RequestTopic         RequestKind = "topic"
	RequestPersonalized  RequestKind = "personalized"
)

// Tier is a user's subscription level, controlling budget and rate caps.
type Tier string

const (
	TierFree     Tier = "free"
	TierFreemium Tier = "freemium"
	TierPremium  Tier = "premium"
)

// Preferences is the request-time override of the stored preference
// model. Per spec.md §9 it is a one-shot override, never written back.
type Preferences struct {
	SurpriseTolerance *int     `json:"surprise_tolerance,omitempty"`
	Topics            []string `json:"topics,omitempty"`
	Depth             *int     `json:"depth,omitempty"`
}

// Job is the durable entity moved through the Job Controller's state
// machine. Created by the Job Controller; mutated only by it.
type Job struct {
	ID                 string       `json:"id"`
	OwnerID            string       `json:"owner_id,omitempty"`
	QueryText          string       `json:"query_text"`
	RequestKind        RequestKind  `json:"request_kind"`
	PreferencesSnapshot *Preferences `json:"preferences_snapshot,omitempty"`
	Status             JobStatus    `json:"status"`
	Progress           int          `json:"progress"`
	ResultArtifact     *ResultArtifact `json:"result_artifact,omitempty"`
	Error              string       `json:"error,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
}

// ResultArtifact is the persisted output of a completed job: the ranked
// candidate set plus pass-through fields for the out-of-scope script
// and TTS stages.
type ResultArtifact struct {
	RankedItems []RankedItem    `json:"ranked_items"`
	Summary     FanOutSummary   `json:"summary"`
	ScriptText  string          `json:"script_text,omitempty"`
	AudioURL    string          `json:"audio_url,omitempty"`
}

// FanOutSummary reports per-source outcome of one fan-out, returned
// alongside the ranked set (spec.md §4.H step 9).
type FanOutSummary struct {
	Sources    []SourceOutcome `json:"sources"`
	TotalCost  float64         `json:"total_cost"`
}

// SourceOutcome captures one provider's contribution to a fan-out.
type SourceOutcome struct {
	Provider   string        `json:"provider"`
	Latency    time.Duration `json:"latency"`
	Cost       float64       `json:"cost"`
	Cached     bool          `json:"cached"`
	Succeeded  bool          `json:"succeeded"`
	ItemCount  int           `json:"item_count"`
	Error      string        `json:"error,omitempty"`
}
