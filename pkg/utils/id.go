package utils

import "github.com/google/uuid"

// NewViewerID generates the stable per-membership viewer identifier. It is
// assigned once at join time and never recomputed, so it survives other
// viewers leaving out of order.
func NewViewerID() string {
	return "viewer_" + uuid.NewString()
}

// NewConnID generates a transport connection identifier.
func NewConnID() string {
	return "conn_" + uuid.NewString()
}
