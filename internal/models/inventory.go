package models

// EndpointStatus enumerates liveness states reported by the inventory API.
type EndpointStatus string

const (
	EndpointUp       EndpointStatus = "up"
	EndpointDown     EndpointStatus = "down"
	EndpointDegraded EndpointStatus = "degraded"
)

// Endpoint is a container-orchestration host or cluster known to the inventory.
// The pipeline treats it as a read-only snapshot refreshed every cycle.
type Endpoint struct {
	ID           string
	Name         string
	Status       EndpointStatus
	SupportsLive bool
}

// Container is a workload snapshot scoped to its owning endpoint.
type Container struct {
	ID         string
	Name       string
	State      string
	EndpointID string
}

// Running reports whether the container should be considered for detection.
func (c Container) Running() bool {
	return c.State == "running"
}
