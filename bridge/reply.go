package bridge

import (
	"sync/atomic"

	"github.com/vovakirdan/chatbridge/transport"
)

// replySink adapts the host's command outcomes to a single reply: the first
// outcome is forwarded and every later one is dropped. Without a reply
// channel all outcomes are discarded.
type replySink struct {
	in        *Inbound
	kind      string
	ack       *transport.Ack
	forwarded atomic.Bool
}

func newReplySink(in *Inbound, kind string, ack *transport.Ack) *replySink {
	return &replySink{in: in, kind: kind, ack: ack}
}

func (s *replySink) SendOutcome(text string) {
	if s.ack == nil {
		return
	}
	if !s.forwarded.CompareAndSwap(false, true) {
		s.in.log.Debug("dropping extra command outcome", "outcome", text)
		return
	}
	s.in.reply(s.kind, s.ack, text)
}

func (s *replySink) AcceptsSuccess() bool { return true }
func (s *replySink) AcceptsFailure() bool { return true }
