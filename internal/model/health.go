package model

import "time"

const (
	ProcessHealthy   = "healthy"
	ProcessUnhealthy = "unhealthy"
	ProcessUnknown   = "unknown"

	DataStoreOnline  = "online"
	DataStoreOffline = "offline"
)

// Health reports the process and data-store signals of a site separately.
// A site can be process-alive with its database missing; callers must see
// both.
type Health struct {
	Site            string    `json:"site_name"`
	Registered      bool      `json:"registered"`
	ProcessStatus   string    `json:"status"`
	HTTPStatus      int       `json:"http_status"`
	DataStoreStatus string    `json:"database_status"`
	CheckedAt       time.Time `json:"last_checked"`
}

// Stats is a best-effort platform summary.
type Stats struct {
	TotalSites        int       `json:"total_sites"`
	RunningContainers int       `json:"running_containers"`
	Databases         int       `json:"databases"`
	Timestamp         time.Time `json:"timestamp"`
}
