package domain

// EncodingProfile is one rung of the outbound quality ladder. ScaleDown is
// the resolution divisor relative to the capture resolution, matching the
// scaleResolutionDownBy semantics browsers use.
type EncodingProfile struct {
	Name       string
	Width      int
	Height     int
	MaxBitrate int // bps
	ScaleDown  float64
}

// DefaultLadder returns the fixed 3-tier ladder used by the bitrate
// controller, ordered lowest to highest. Exactly one tier is active at a
// time; this is single-active-encoding switching, not simulcast.
func DefaultLadder() []EncodingProfile {
	return []EncodingProfile{
		{Name: "480p", Width: 854, Height: 480, MaxBitrate: 1_000_000, ScaleDown: 2.25},
		{Name: "720p", Width: 1280, Height: 720, MaxBitrate: 2_500_000, ScaleDown: 1.5},
		{Name: "1080p", Width: 1920, Height: 1080, MaxBitrate: 4_500_000, ScaleDown: 1.0},
	}
}
