package entity

import (
	"errors"
	"math/big"
	"strconv"
	"strings"
)

var ErrInvalidTradeID = errors.New("invalid trade id")

// TradeID is a platform trade identifier in canonical form. Platform ids
// exceed float64 precision, so numeric ids are normalized through big.Int and
// kept as decimal strings.
type TradeID struct {
	canonical string
}

// ParseTradeID normalizes raw into its canonical form: a non-negative
// decimal without leading zeros. A leading plus sign is accepted.
func ParseTradeID(raw string) (TradeID, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "+")
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return TradeID{}, ErrInvalidTradeID
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return TradeID{}, ErrInvalidTradeID
	}

	return TradeID{canonical: n.String()}, nil
}

func MustTradeID(raw string) TradeID {
	id, err := ParseTradeID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (id TradeID) String() string {
	return id.canonical
}

func (id TradeID) IsZero() bool {
	return id.canonical == ""
}

func (id TradeID) Equal(other TradeID) bool {
	return id.canonical == other.canonical
}

func (id TradeID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(id.canonical)), nil
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers. A JSON
// null leaves the zero id.
func (id *TradeID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = TradeID{}
		return nil
	}

	parsed, err := ParseTradeID(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
