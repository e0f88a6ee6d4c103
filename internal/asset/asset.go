// Package asset models native and ledger-backed asset identities with exact
// unsigned integer quantities.
package asset

import (
	"fmt"
	"math/bits"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/swapflow/errs"
)

// Kind discriminates the two asset representations.
type Kind string

const (
	// KindNative marks a bank-denominated asset identified by its denom.
	KindNative Kind = "native"
	// KindLedger marks a token ledger contract asset identified by its address.
	KindLedger Kind = "ledger"
)

// Info identifies an asset. It is a closed two-variant union: either a native
// denom or a ledger contract address. Info is comparable and used as a map key,
// equality is by kind plus identifier.
type Info struct {
	kind Kind
	id   string
}

// Native constructs the Info for a bank-denominated asset.
func Native(denom string) Info {
	return Info{kind: KindNative, id: strings.TrimSpace(denom)}
}

// Ledger constructs the Info for a token ledger contract asset.
func Ledger(contract string) Info {
	return Info{kind: KindLedger, id: strings.TrimSpace(contract)}
}

// Kind returns the representation discriminant.
func (i Info) Kind() Kind { return i.kind }

// Identifier returns the denom or contract address for the variant.
func (i Info) Identifier() string { return i.id }

// IsNative reports whether the asset is bank-denominated.
func (i Info) IsNative() bool { return i.kind == KindNative }

// Zero reports whether the Info is the uninitialised value.
func (i Info) Zero() bool { return i.kind == "" && i.id == "" }

func (i Info) String() string {
	if i.Zero() {
		return "<none>"
	}
	return string(i.kind) + ":" + i.id
}

// Validate ensures the Info carries a known kind and a non-empty identifier.
func (i Info) Validate() error {
	switch i.kind {
	case KindNative, KindLedger:
	default:
		return errs.New("asset/info", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("unknown asset kind %q", i.kind)))
	}
	if i.id == "" {
		return errs.New("asset/info", errs.CodeInvalid, errs.WithMessage("asset identifier required"))
	}
	return nil
}

type infoWire struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// MarshalJSON encodes the Info with an explicit kind discriminant.
func (i Info) MarshalJSON() ([]byte, error) {
	return json.Marshal(infoWire{Kind: i.kind, ID: i.id})
}

// UnmarshalJSON decodes and validates the discriminated form.
func (i *Info) UnmarshalJSON(data []byte) error {
	var wire infoWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode asset info: %w", err)
	}
	decoded := Info{kind: wire.Kind, id: wire.ID}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*i = decoded
	return nil
}

// Amount pairs an asset identity with an exact unsigned integer quantity.
type Amount struct {
	Asset    Info   `json:"asset"`
	Quantity uint64 `json:"quantity"`
}

// NewAmount constructs an Amount.
func NewAmount(info Info, quantity uint64) Amount {
	return Amount{Asset: info, Quantity: quantity}
}

// IsZero reports whether the quantity is zero.
func (a Amount) IsZero() bool { return a.Quantity == 0 }

func (a Amount) String() string {
	return fmt.Sprintf("%d %s", a.Quantity, a.Asset)
}

// Add sums two amounts of the same asset. Mismatched assets or overflow fail.
func (a Amount) Add(other Amount) (Amount, error) {
	if a.Asset != other.Asset {
		return Amount{}, errs.New("asset/amount", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("cannot add %s to %s", other.Asset, a.Asset)))
	}
	sum, err := CheckedAdd(a.Quantity, other.Quantity)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Asset: a.Asset, Quantity: sum}, nil
}

// Sub subtracts other from a, failing on asset mismatch or underflow.
func (a Amount) Sub(other Amount) (Amount, error) {
	if a.Asset != other.Asset {
		return Amount{}, errs.New("asset/amount", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("cannot subtract %s from %s", other.Asset, a.Asset)))
	}
	if other.Quantity > a.Quantity {
		return Amount{}, errs.New("asset/amount", errs.CodeArithmetic,
			errs.WithMessage("subtraction underflow"))
	}
	return Amount{Asset: a.Asset, Quantity: a.Quantity - other.Quantity}, nil
}

// CheckedAdd returns a+b or an arithmetic error on uint64 overflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, errs.New("asset/amount", errs.CodeArithmetic, errs.WithMessage("addition overflow"))
	}
	return sum, nil
}

// MulRatio computes quantity*numerator/denominator truncated toward zero, using a
// 128-bit intermediate so the multiplication cannot overflow. The denominator
// must exceed the numerator's contribution to the high word, which holds for
// percent ratios (numerator <= 100, denominator == 100).
func MulRatio(quantity uint64, numerator, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, errs.New("asset/amount", errs.CodeArithmetic, errs.WithMessage("division by zero"))
	}
	hi, lo := bits.Mul64(quantity, numerator)
	if hi >= denominator {
		return 0, errs.New("asset/amount", errs.CodeArithmetic, errs.WithMessage("ratio multiplication overflow"))
	}
	quotient, _ := bits.Div64(hi, lo, denominator)
	return quotient, nil
}
