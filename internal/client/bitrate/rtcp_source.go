package bitrate

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// RTCPSource aggregates receiver feedback from the outbound RTP senders
// into the controller's sample shape: receiver reports give fraction lost
// and an RTT estimate from the DLSR field, REMB gives the available send
// bandwidth.
type RTCPSource struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	sample  Sample
	hasData bool
}

func NewRTCPSource(logger *zap.SugaredLogger) *RTCPSource {
	return &RTCPSource{logger: logger}
}

// Watch consumes RTCP from one sender until the sender is closed.
func (s *RTCPSource) Watch(sender *webrtc.RTPSender) {
	go s.readLoop(sender)
}

// Sample implements StatsSource.
func (s *RTCPSource) Sample() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample, s.hasData
}

func (s *RTCPSource) readLoop(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			// Sender closed; the connection is being replaced or torn down.
			return
		}
		s.process(packets)
	}
}

func (s *RTCPSource) process(packets []rtcp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				s.sample.LossPercent = float64(report.FractionLost) / 256.0 * 100.0
				if report.LastSenderReport != 0 && report.Delay != 0 {
					// DLSR is in 1/65536 seconds; this ignores the network
					// leg back, which is close enough for tier decisions.
					s.sample.RTT = time.Duration(report.Delay) * time.Second / 65536
				}
				s.hasData = true
			}

		case *rtcp.ReceiverEstimatedMaximumBitrate:
			s.sample.Bandwidth = int(p.Bitrate)
			s.hasData = true

		case *rtcp.TransportLayerNack:
			s.logger.Debugw("received NACK", "nacks", len(p.Nacks))

		case *rtcp.PictureLossIndication:
			s.logger.Debugw("received PLI, keyframe requested")
		}
	}
}
