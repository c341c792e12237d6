package value

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxDecimalScale is the largest number of fractional digits a Decimal holds.
const MaxDecimalScale = 28

// Decimal is a 96-bit unsigned coefficient with a sign and a base-10 scale.
// The represented number is (-1)^Neg * (Hi<<64 | Lo) / 10^Scale.
type Decimal struct {
	Lo    uint64
	Hi    uint32
	Scale uint8
	Neg   bool
}

func (d Decimal) flags() uint32 {
	f := uint32(d.Scale) << 16
	if d.Neg {
		f |= 1 << 31
	}
	return f
}

func decimalFromWire(lo uint64, hi uint32, flags uint32) (Decimal, error) {
	if flags&^(0xFF<<16|1<<31) != 0 {
		return Decimal{}, fmt.Errorf("%w: decimal reserved flag bits set", ErrMalformed)
	}
	scale := uint8(flags >> 16)
	if scale > MaxDecimalScale {
		return Decimal{}, fmt.Errorf("%w: decimal scale %d", ErrMalformed, scale)
	}
	return Decimal{Lo: lo, Hi: hi, Scale: scale, Neg: flags&(1<<31) != 0}, nil
}

func (d Decimal) coefficient() *big.Int {
	c := new(big.Int).SetUint64(uint64(d.Hi))
	c.Lsh(c, 64)
	return c.Or(c, new(big.Int).SetUint64(d.Lo))
}

func (d Decimal) IsZero() bool {
	return d.Lo == 0 && d.Hi == 0
}

func (d Decimal) String() string {
	digits := d.coefficient().String()
	if d.Scale > 0 {
		if pad := int(d.Scale) + 1 - len(digits); pad > 0 {
			digits = strings.Repeat("0", pad) + digits
		}
		cut := len(digits) - int(d.Scale)
		digits = digits[:cut] + "." + digits[cut:]
	}
	if d.Neg && !d.IsZero() {
		return "-" + digits
	}
	return digits
}

var maxCoefficient = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))

// ParseDecimal parses a plain decimal literal such as "-12.50".
func ParseDecimal(s string) (Decimal, error) {
	raw := strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(raw, "-"):
		neg = true
		raw = raw[1:]
	case strings.HasPrefix(raw, "+"):
		raw = raw[1:]
	}
	intPart, fracPart, _ := strings.Cut(raw, ".")
	if intPart == "" && fracPart == "" {
		return Decimal{}, fmt.Errorf("value: invalid decimal %q", s)
	}
	if len(fracPart) > MaxDecimalScale {
		return Decimal{}, fmt.Errorf("value: decimal %q exceeds scale %d", s, MaxDecimalScale)
	}
	digits := intPart + fracPart
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Decimal{}, fmt.Errorf("value: invalid decimal %q", s)
		}
	}
	c, ok := new(big.Int).SetString(digits, 10)
	if !ok || c.Cmp(maxCoefficient) > 0 {
		return Decimal{}, fmt.Errorf("value: decimal %q out of range", s)
	}
	lo := new(big.Int).And(c, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hi := new(big.Int).Rsh(c, 64).Uint64()
	return Decimal{Lo: lo, Hi: uint32(hi), Scale: uint8(len(fracPart)), Neg: neg}, nil
}
