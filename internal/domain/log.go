package domain

import "time"

// LogLine is a single line emitted while building or running a deployment.
type LogLine struct {
	ID           int64     `json:"id"`
	DeploymentID string    `json:"deployment_id"`
	Stream       string    `json:"stream"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// Log streams.
const (
	StreamBuild   = "build"
	StreamSystem  = "system"
	StreamRuntime = "runtime"
)
