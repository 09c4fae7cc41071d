package types

import "time"

// JobStatus is the persisted job state.
type JobStatus string

const (
	StatusQueued     JobStatus = "QUEUED"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// SourceKind describes how a job's transcript is supplied.
type SourceKind string

const (
	SourceText    SourceKind = "text"
	SourceRecords SourceKind = "records"
	SourceAudio   SourceKind = "audio"
)

// Job is the persisted unit of work the orchestrator drives.
type Job struct {
	ID                   string        `json:"id"`
	Status               JobStatus     `json:"status"`
	Progress             string        `json:"progress"`
	Persona              string        `json:"persona"`
	SourceKind           SourceKind    `json:"source_kind"`
	Text                 string        `json:"text,omitempty"`
	Records              []TimedRecord `json:"records,omitempty"`
	AudioURL             string        `json:"audio_url,omitempty"`
	ArtifactPath         string        `json:"artifact_path,omitempty"`
	PreAuthorizedCredits float64       `json:"pre_authorized_credits,omitempty"`
	Error                string        `json:"error,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// LogEntry is an append-only job log line.
type LogEntry struct {
	Stage   string    `json:"stage"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Document is the finalized output of a pipeline run.
type Document struct {
	JobID           string          `json:"job_id"`
	Title           string          `json:"title"`
	Persona         string          `json:"persona"`
	Strategy        string          `json:"strategy"`
	Sections        []SectionResult `json:"sections"`
	FailedSections  []int           `json:"failed_sections,omitempty"`
	SkippedSections []int           `json:"skipped_sections,omitempty"`
	Synthesis       Synthesis       `json:"synthesis"`
	QuizGroups      []QuizGroup     `json:"quiz_groups"`
	Costs           CostMetrics     `json:"costs"`
	Timings         TimingMetrics   `json:"timings"`
	AssetPath       string          `json:"asset_path,omitempty"`
}
