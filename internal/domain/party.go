// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
)

const (
	MaxPartyIDLen = 36
	MaxNameLen    = 36
)

var (
	ErrPartyIDEmpty   = errors.New("party id empty")
	ErrPartyIDTooLong = errors.New("party id too long")
	ErrNameTooLong    = errors.New("party name too long")
)

// PartyID is the stable identity the relay routes by.
type PartyID string

type Party struct {
	ID   PartyID `json:"id"`
	Name string  `json:"name,omitempty"`
}

// NewParty validates identity fields. An empty name falls back to the id.
func NewParty(id, name string) (Party, error) {
	if len(id) == 0 {
		return Party{}, ErrPartyIDEmpty
	}
	if len(id) > MaxPartyIDLen {
		return Party{}, ErrPartyIDTooLong
	}
	if len(name) > MaxNameLen {
		return Party{}, ErrNameTooLong
	}
	if name == "" {
		name = id
	}
	return Party{ID: PartyID(id), Name: name}, nil
}

func (p Party) IsZero() bool { return p.ID == "" }

func (p Party) String() string {
	if p.Name == "" || p.Name == string(p.ID) {
		return string(p.ID)
	}
	return p.Name + "(" + string(p.ID) + ")"
}
