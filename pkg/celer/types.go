package celer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Hash - 32 byte opaque value, used for content or registration derived ids
type Hash [32]byte

// AccountID - participant or system owned account
type AccountID [32]byte

// ChannelID, WalletID and PayHash share the Hash encoding.
type (
	ChannelID = Hash
	WalletID  = Hash
	PayHash   = Hash
)

// BlockNumber - index of a snapshot in the state machine history
type BlockNumber = uint64

func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	return decode32((*[32]byte)(h), text, "hash")
}

func (a AccountID) String() string {
	return hexutil.Encode(a[:])
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	return decode32((*[32]byte)(a), text, "account id")
}

// ParseHash parses 0x-prefixed hex of 32 bytes.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// ParseAccountID parses 0x-prefixed hex of 32 bytes.
func ParseAccountID(s string) (AccountID, error) {
	var a AccountID
	if err := a.UnmarshalText([]byte(s)); err != nil {
		return AccountID{}, err
	}
	return a, nil
}

func decode32(dst *[32]byte, text []byte, what string) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return fmt.Errorf("incorrect %s format, should be 0x-prefixed hex: %w", what, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("incorrect %s length, should be 32 bytes, got %d", what, len(b))
	}
	copy(dst[:], b)
	return nil
}

// U128 - non-negative integer of at most 128 bits, encoded as decimal string
type U128 struct {
	n uint256.Int
}

type (
	Balance = U128
	SeqNum  = U128
)

func NewU128(v uint64) U128 {
	var u U128
	u.n.SetUint64(v)
	return u
}

// U128FromDecimal parses a decimal string, values wider than 128 bits are rejected.
func U128FromDecimal(s string) (U128, error) {
	var u U128
	if err := u.n.SetFromDecimal(s); err != nil {
		return U128{}, fmt.Errorf("incorrect amount format: %w", err)
	}
	if u.n.BitLen() > 128 {
		return U128{}, fmt.Errorf("amount %s overflows 128 bits", s)
	}
	return u, nil
}

func MustU128(s string) U128 {
	u, err := U128FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u U128) String() string {
	return u.n.Dec()
}

func (u U128) Cmp(o U128) int {
	return u.n.Cmp(&o.n)
}

func (u U128) IsZero() bool {
	return u.n.IsZero()
}

func (u U128) Uint64() uint64 {
	return u.n.Uint64()
}

func (u U128) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *U128) UnmarshalText(text []byte) error {
	v, err := U128FromDecimal(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// ChannelStatus - channel lifecycle stage as tracked by the ledger
type ChannelStatus uint8

const (
	// ChannelUninitialized is also reported for channels that were never created.
	ChannelUninitialized ChannelStatus = iota
	ChannelOperable
	ChannelSettling
	ChannelClosed
	ChannelMigrated
)

func (s ChannelStatus) Valid() bool {
	return s <= ChannelMigrated
}

func (s ChannelStatus) String() string {
	switch s {
	case ChannelUninitialized:
		return "uninitialized"
	case ChannelOperable:
		return "operable"
	case ChannelSettling:
		return "settling"
	case ChannelClosed:
		return "closed"
	case ChannelMigrated:
		return "migrated"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}
