package decimal

import (
	"encoding/json"
	"errors"
	"math/big"
)

var (
	ErrNegative = errors.New("negative amounts are not allowed")
	ErrInfinite = errors.New("infinite amounts are not allowed")
	ErrOverflow = errors.New("amount does not fit in backend units")
)

const OperationPrec = 256

const RoundingMode = big.ToNearestEven

// Decimal is a human readable amount. Backends count in integer units, Unit is how many
// backend units make one displayed unit (1000 msat per sat, 1e12 piconero per XMR)
type Decimal struct {
	Value *big.Float
}

func newFloat() (f *big.Float) {
	return big.NewFloat(0).SetMode(RoundingMode).SetPrec(OperationPrec)
}

func unitAsFloat(unit uint64) (f *big.Float) {
	return newFloat().SetInt(big.NewInt(0).SetUint64(max(unit, 1)))
}

func New(amount, unit uint64) (d Decimal) {
	d.FromUint64(amount, unit)
	return d
}

func (d *Decimal) FromUint64(v, unit uint64) {
	d.Value = newFloat().SetInt(big.NewInt(0).SetUint64(v))
	d.Value = d.Value.Quo(d.Value, unitAsFloat(unit))
}

// ToUint64 converts back to backend units rounding to the nearest one
func (d *Decimal) ToUint64(unit uint64) (v uint64, err error) {
	if d.Value == nil || d.Value.Sign() <= 0 {
		return 0, nil
	}
	if d.Value.IsInf() {
		return 0, ErrInfinite
	}

	product := newFloat().Mul(d.Value, unitAsFloat(unit))
	product.Add(product, big.NewFloat(0.5))
	asInt, _ := product.Int(nil)
	if asInt == nil || !asInt.IsUint64() {
		return 0, ErrOverflow
	}
	return asInt.Uint64(), nil
}

func (d *Decimal) FromString(s string) (err error) {
	value, _, err := big.ParseFloat(s, 10, OperationPrec, RoundingMode)
	if err != nil {
		return err
	}
	if value.IsInf() {
		return ErrInfinite
	}
	if value.Sign() < 0 {
		return ErrNegative
	}
	d.Value = value
	return nil
}

func (d Decimal) String() (s string) {
	if d.Value == nil {
		return "0"
	}
	return d.Value.Text('f', -1)
}

var (
	_ json.Unmarshaler = (*Decimal)(nil)
	_ json.Marshaler   = (*Decimal)(nil)
)

func (d *Decimal) UnmarshalJSON(b []byte) (err error) {
	var asString string
	err = json.Unmarshal(b, &asString)
	if err != nil {
		return err
	}

	return d.FromString(asString)
}

func (d *Decimal) MarshalJSON() (b []byte, err error) {
	return json.Marshal(d.String())
}
