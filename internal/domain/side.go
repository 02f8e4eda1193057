package domain

import "fmt"

// Side is the direction of an order: exactly one of SideBuy or SideSell.
// The zero value is invalid so an unset side is never mistaken for a buy.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

// ParseSide converts "buy" or "sell" into a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return 0, &ValidationError{Message: fmt.Sprintf("side must be 'buy' or 'sell', got %q", s)}
}

// Valid reports whether s is one of the two defined sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the counter side. It panics on an invalid side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	panic(fmt.Sprintf("domain: invalid side %d", uint8(s)))
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("domain: invalid side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
