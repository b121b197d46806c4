package domain

import "time"

// Core domain models used internally. The HTTP adapter encodes these directly;
// JSON names follow the wire format the front end and the bridge worker already speak.

type JobState string

const (
	JobQueued  JobState = "QUEUED"
	JobRunning JobState = "RUNNING"
	JobDone    JobState = "DONE"
	JobFailed  JobState = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s JobState) Terminal() bool { return s == JobDone || s == JobFailed }

// JobSpec holds the immutable inputs of a conversion job.
type JobSpec struct {
	CameraIPSuffix string `json:"camera_ip_suffix"`
	Workspace      string `json:"workspace" validate:"required"`
	OutDir         string `json:"outdir" validate:"required"`
	ScanIndex      *int   `json:"scan_index"`
}

// Outcome is what a worker reports when it finishes a job.
type Outcome struct {
	OK          bool     `json:"ok"`
	ExitCode    *int     `json:"exit_code"`
	Stdout      string   `json:"stdout"`
	Stderr      string   `json:"stderr"`
	OutputFiles []string `json:"output_files"`
}

type Job struct {
	ID         string    `json:"job_id"`
	State      JobState  `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	AssignedTo *string   `json:"assigned_to"`

	JobSpec

	OK          *bool    `json:"ok"`
	ExitCode    *int     `json:"exit_code"`
	Stdout      string   `json:"stdout"`
	Stderr      string   `json:"stderr"`
	OutputFiles []string `json:"output_files"`
}

// ScanRef names the newest scan on a scanner. DownloadName is empty when the
// listing has no usable enclosure.
type ScanRef struct {
	DisplayName  string
	DownloadName string
}

type SessionOutcome string

const (
	SessionCompleted  SessionOutcome = "completed"
	SessionUnresolved SessionOutcome = "unresolved"
	SessionStopped    SessionOutcome = "stopped"
	SessionFailed     SessionOutcome = "failed"
)

// SessionResult describes every stage of one scan session.
type SessionResult struct {
	Outcome          SessionOutcome    `json:"outcome"`
	Message          string            `json:"message"`
	Camera           string            `json:"camera"`
	FileName         string            `json:"file_name,omitempty"`
	DownloadName     *string           `json:"download_name"`
	DeadlineExceeded bool              `json:"deadline_exceeded,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	Artifact         *ArtifactResult   `json:"artifact,omitempty"`
	Conversion       *ConversionResult `json:"conversion,omitempty"`
	Error            string            `json:"error,omitempty"`
}

type ArtifactResult struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Size  int64  `json:"size,omitempty"`
	Error string `json:"error,omitempty"`
}

type ConversionResult struct {
	RunDir      string   `json:"run_dir,omitempty"`
	Run         string   `json:"run,omitempty"`
	PrimaryFile string   `json:"primary_file,omitempty"`
	Files       []string `json:"files,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Conversion is the converter's answer to a convert-latest call.
type Conversion struct {
	RunDir      string
	Run         string
	PrimaryFile string
	Files       []string
}

// SessionStatus is a point-in-time view of the scan session.
type SessionStatus struct {
	Active    bool           `json:"active"`
	Paused    bool           `json:"paused"`
	Camera    string         `json:"camera,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Last      *SessionResult `json:"last_result,omitempty"`
}
