package relay

import (
	"github.com/rs/zerolog/log"

	"challasaath/internal/protocol"
)

// Outbox yields envelopes addressed to the peer.
func (p *Peer) Outbox() <-chan protocol.Envelope { return p.out }

// Done is closed once the peer has been dropped.
func (p *Peer) Done() <-chan struct{} { return p.done }

// send queues env without blocking. A peer whose outbox is full is dropped.
func (p *Peer) send(env protocol.Envelope) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- env:
		return true
	default:
		log.Warn().Str("peer", p.ID).Str("kind", string(env.Kind)).Msg("outbox full, dropping peer")
		p.kick()
		return false
	}
}

func (p *Peer) fail(kind protocol.Kind, code protocol.FailCode, reason string) {
	p.send(protocol.MustEncode(kind, protocol.Failure{Code: code, Reason: reason}))
}

func (p *Peer) kick() {
	p.once.Do(func() { close(p.done) })
}

func (p *Peer) playerLocked() protocol.Player {
	return protocol.Player{Actor: p.actor, Nickname: p.Nickname, UserID: p.ID}
}
