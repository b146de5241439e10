package console

import (
	"slices"

	"github.com/vovakirdan/chatbridge/bridge"
)

func (h *Host) SubscribeChat(fn func(bridge.ChatEvent)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.chat = append(h.chat, fn)
}

func (h *Host) SubscribeJoin(fn func(bridge.Player)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.join = append(h.join, fn)
}

func (h *Host) SubscribeLeave(fn func(bridge.Player)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.leave = append(h.leave, fn)
}

func (h *Host) SubscribeAdvancement(fn func(bridge.AdvancementEvent)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.advancement = append(h.advancement, fn)
}

func (h *Host) SubscribeDeath(fn func(bridge.DeathEvent)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.death = append(h.death, fn)
}

// Subscribers are copied out so a callback may subscribe again without deadlock.

func (h *Host) eachChat(ev bridge.ChatEvent) {
	h.subMu.Lock()
	fns := slices.Clone(h.chat)
	h.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *Host) eachJoin(p bridge.Player) {
	h.subMu.Lock()
	fns := slices.Clone(h.join)
	h.subMu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (h *Host) eachLeave(p bridge.Player) {
	h.subMu.Lock()
	fns := slices.Clone(h.leave)
	h.subMu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (h *Host) eachAdvancement(ev bridge.AdvancementEvent) {
	h.subMu.Lock()
	fns := slices.Clone(h.advancement)
	h.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *Host) eachDeath(ev bridge.DeathEvent) {
	h.subMu.Lock()
	fns := slices.Clone(h.death)
	h.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
