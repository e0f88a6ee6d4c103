package asset

import (
	"math"
	"testing"

	json "github.com/goccy/go-json"
)

func TestInfoEquality(t *testing.T) {
	if Native("inj") != Native("inj") {
		t.Error("identical native infos must compare equal")
	}
	if Native("usdt") == Ledger("usdt") {
		t.Error("native and ledger variants with the same identifier must differ")
	}
	if Native("inj") == Native("usdt") {
		t.Error("different denoms must differ")
	}
}

func TestInfoValidate(t *testing.T) {
	tests := []struct {
		name    string
		info    Info
		wantErr bool
	}{
		{name: "native", info: Native("inj"), wantErr: false},
		{name: "ledger", info: Ledger("wasm1contract"), wantErr: false},
		{name: "empty denom", info: Native("  "), wantErr: true},
		{name: "zero value", info: Info{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInfoJSONRoundTrip(t *testing.T) {
	original := Ledger("wasm1adapter")
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Info
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: got %s, want %s", decoded, original)
	}
}

func TestInfoUnmarshalRejectsUnknownKind(t *testing.T) {
	var info Info
	if err := json.Unmarshal([]byte(`{"kind":"synthetic","id":"x"}`), &info); err == nil {
		t.Error("expected unknown kind to be rejected")
	}
}

func TestAmountAdd(t *testing.T) {
	a := NewAmount(Native("inj"), 10)
	b := NewAmount(Native("inj"), 32)
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.Quantity != 42 {
		t.Errorf("sum = %d, want 42", sum.Quantity)
	}

	if _, err := a.Add(NewAmount(Native("usdt"), 1)); err == nil {
		t.Error("expected asset mismatch error")
	}

	if _, err := NewAmount(Native("inj"), math.MaxUint64).Add(b); err == nil {
		t.Error("expected overflow error")
	}
}

func TestAmountSub(t *testing.T) {
	a := NewAmount(Native("inj"), 10)
	diff, err := a.Sub(NewAmount(Native("inj"), 4))
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if diff.Quantity != 6 {
		t.Errorf("diff = %d, want 6", diff.Quantity)
	}
	if _, err := a.Sub(NewAmount(Native("inj"), 11)); err == nil {
		t.Error("expected underflow error")
	}
}

func TestMulRatio(t *testing.T) {
	tests := []struct {
		name     string
		quantity uint64
		num      uint64
		den      uint64
		want     uint64
		wantErr  bool
	}{
		{name: "half", quantity: 100, num: 50, den: 100, want: 50},
		{name: "truncates", quantity: 101, num: 50, den: 100, want: 50},
		{name: "full", quantity: 7, num: 100, den: 100, want: 7},
		{name: "large quantity no overflow", quantity: math.MaxUint64, num: 99, den: 100, want: 18262276632972456098},
		{name: "zero denominator", quantity: 1, num: 1, den: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulRatio(tt.quantity, tt.num, tt.den)
			if (err != nil) != tt.wantErr {
				t.Fatalf("MulRatio() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("MulRatio() = %d, want %d", got, tt.want)
			}
		})
	}
}
