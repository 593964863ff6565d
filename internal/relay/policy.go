package relay

import (
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/signal"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens when a party's outbound queue is full.
type Policy interface {
	OnBackPressure(target domain.Party, event string) BackpressureAction
}

// SimplePolicy disconnects slow parties.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.Party, string) BackpressureAction {
	return KickMember
}

// LenientPolicy drops the frame and keeps the party, except for call:end,
// which a party must not miss.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(_ domain.Party, event string) BackpressureAction {
	if event == signal.EventCallEnd {
		return KickMember
	}
	return DropFrame
}
