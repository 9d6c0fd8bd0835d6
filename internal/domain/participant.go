package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ParticipantKind is the closed set of account kinds that can own or bid on an auction.
type ParticipantKind uint8

const (
	KindAdmin ParticipantKind = iota + 1
	KindUser
	KindCustomer
)

func (k ParticipantKind) String() string {
	switch k {
	case KindAdmin:
		return "admin"
	case KindUser:
		return "user"
	case KindCustomer:
		return "customer"
	default:
		return "unknown"
	}
}

func (k ParticipantKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ParticipantKind) UnmarshalText(text []byte) error {
	parsed, err := ParseParticipantKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func ParseParticipantKind(s string) (ParticipantKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return KindAdmin, nil
	case "user":
		return KindUser, nil
	case "customer":
		return KindCustomer, nil
	default:
		return 0, fmt.Errorf("unknown participant kind %q", s)
	}
}

// ParticipantRef identifies a creator, bidder or winner by (kind, id).
// It is a comparable value and can be used directly as a map key.
type ParticipantRef struct {
	Kind ParticipantKind `json:"kind"`
	ID   int64           `json:"id"`
}

func AdminRef(id int64) ParticipantRef    { return ParticipantRef{Kind: KindAdmin, ID: id} }
func UserRef(id int64) ParticipantRef     { return ParticipantRef{Kind: KindUser, ID: id} }
func CustomerRef(id int64) ParticipantRef { return ParticipantRef{Kind: KindCustomer, ID: id} }

func ParseParticipantRef(kind, id string) (ParticipantRef, error) {
	k, err := ParseParticipantKind(kind)
	if err != nil {
		return ParticipantRef{}, err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return ParticipantRef{}, fmt.Errorf("invalid participant id %q", id)
	}
	return ParticipantRef{Kind: k, ID: n}, nil
}

func (p ParticipantRef) IsZero() bool {
	return p.Kind == 0 && p.ID == 0
}

// CanBid reports whether the participant kind is allowed to place bids.
func (p ParticipantRef) CanBid() bool {
	return (p.Kind == KindUser || p.Kind == KindCustomer) && p.ID > 0
}

// Less orders references by id first, then kind.
func (p ParticipantRef) Less(other ParticipantRef) bool {
	if p.ID != other.ID {
		return p.ID < other.ID
	}
	return p.Kind < other.Kind
}

func (p ParticipantRef) String() string {
	return p.Kind.String() + ":" + strconv.FormatInt(p.ID, 10)
}
