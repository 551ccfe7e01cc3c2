package domain

import "encoding/json"

// Signal message types exchanged over the relay. The wire shape is shared
// with the web clients, so field names are camelCase.
const (
	MsgJoinAsBroadcaster    = "join-as-broadcaster"
	MsgJoinAsViewer         = "join-as-viewer"
	MsgRequestStream        = "request-stream"
	MsgOffer                = "offer"
	MsgAnswer               = "answer"
	MsgICECandidate         = "ice-candidate"
	MsgBroadcasterAvailable = "broadcaster-available"
	MsgBroadcasterLeft      = "broadcaster-left"
	MsgViewerRequest        = "viewer-request"
)

// SignalMessage is the single envelope for everything on the signaling
// channel. Data carries SDP or ICE payloads opaque to the relay; the relay
// only reads the routing fields. There is no schema versioning.
type SignalMessage struct {
	Type           string          `json:"type"`
	StreamID       StreamID        `json:"streamId"`
	Data           json.RawMessage `json:"data,omitempty"`
	TargetViewerID ViewerID        `json:"targetViewerId,omitempty"`
	ViewerID       ViewerID        `json:"viewerId,omitempty"`
}
