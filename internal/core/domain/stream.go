package domain

import "time"

type StreamID string
type ConnID string
type ViewerID string

// Role is the part a connection plays in a stream session. A connection
// starts with no role and acquires one on its first join message; a later
// join simply overwrites it.
type Role string

const (
	RoleNone        Role = ""
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

// StreamStatus is the read-model the directory exposes to the UI and
// analytics layers. They never see connections, only counts.
type StreamStatus struct {
	ID          StreamID  `json:"stream_id"`
	Live        bool      `json:"live"`
	ViewerCount int       `json:"viewer_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
