package domain

import (
	"errors"
	"fmt"
	"time"
)

// ProviderCatalyst identifies deployments run on the built-in Docker platform.
const ProviderCatalyst = "catalyst"

// Status is the lifecycle state of a deployment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBuilding  Status = "building"
	StatusDeploying Status = "deploying"
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
	StatusRemoved   Status = "removed"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid deployment status transition")

var transitions = map[Status][]Status{
	StatusPending:   {StatusBuilding, StatusFailed, StatusRemoved},
	StatusBuilding:  {StatusDeploying, StatusFailed, StatusRemoved},
	StatusDeploying: {StatusRunning, StatusFailed, StatusRemoved},
	StatusRunning:   {StatusRunning, StatusStopped, StatusFailed, StatusRemoved},
	StatusStopped:   {StatusRunning, StatusFailed, StatusRemoved},
	StatusFailed:    {StatusRemoved},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CheckTransition wraps ErrInvalidTransition with the offending states.
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ParseStatus normalises stored status values. Legacy "success" rows read as running.
func ParseStatus(value string) Status {
	if value == "success" {
		return StatusRunning
	}
	return Status(value)
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusRemoved
}

// Deployment captures a single deploy attempt on the built-in platform.
type Deployment struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	ProjectName   string     `json:"project_name"`
	Provider      string     `json:"provider"`
	Subdomain     string     `json:"subdomain"`
	Status        Status     `json:"status"`
	ContainerID   string     `json:"container_id,omitempty"`
	Port          int        `json:"port,omitempty"`
	DeploymentURL string     `json:"deployment_url,omitempty"`
	ImageName     string     `json:"image_name,omitempty"`
	Framework     string     `json:"framework,omitempty"`
	CPULimit      int        `json:"cpu_limit"`
	MemoryLimit   int        `json:"memory_limit"`
	Logs          string     `json:"logs,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// DeploymentUpdate carries mutable fields. Empty strings and zero ports leave the stored value untouched.
type DeploymentUpdate struct {
	ID            string
	Status        Status
	ContainerID   string
	Port          int
	DeploymentURL string
	ImageName     string
	Framework     string
	Logs          string
	ErrorMessage  string
	CompletedAt   *time.Time
}
