package domain

import "time"

// SourceFile is one generated file of a project.
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// BuildContext is the input of an image build.
type BuildContext struct {
	ProjectID   string
	ProjectName string
	Subdomain   string
	Files       []SourceFile
}

// BuildResult describes a successfully built image.
type BuildResult struct {
	ImageName string
	Framework string
	BuildLogs []string
}

// RunRequest describes the container to start for an image.
type RunRequest struct {
	DeploymentID string
	ImageName    string
	Subdomain    string
	CPULimit     int // millicores
	MemoryLimit  int // MB
	Port         int
}

// ContainerHandle identifies a started container and its public address.
type ContainerHandle struct {
	ContainerID   string `json:"container_id"`
	Port          int    `json:"port"`
	DeploymentURL string `json:"deployment_url"`
}

// Health reports container state and uptime in seconds.
type Health struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// UnknownHealth is reported whenever the runtime cannot be inspected.
var UnknownHealth = Health{Status: "unknown", Uptime: 0}

// ReservationKind names an allocation namespace.
type ReservationKind string

const (
	ReservationSubdomain ReservationKind = "subdomain"
	ReservationPort      ReservationKind = "port"
)

// Reservation claims a value of a namespace for one deployment.
type Reservation struct {
	Kind         ReservationKind
	Value        string
	DeploymentID string
	CreatedAt    time.Time
}
