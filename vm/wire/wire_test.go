package wire

import (
	"errors"
	"math"
	"testing"
)

func roundTrip(t *testing.T, n Node) Node {
	t.Helper()
	data, err := Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return got
}

func TestRoundTripPreservesValues(t *testing.T) {
	tests := []struct {
		name string
		node Node
	}{
		{"undefined", Undefined()},
		{"null", Null()},
		{"bool", Bool(true)},
		{"int", Int(-7)},
		{"uint", Uint(math.MaxUint32)},
		{"number", Number(3.25)},
		{"negative zero", Number(math.Copysign(0, -1))},
		{"nan", Number(math.NaN())},
		{"string", String("héllo")},
		{"xml", XML("<a b=\"1\"/>")},
		{"bytes", Bytes([]byte{0, 1, 2})},
		{"object", Object(Field{"x", Int(1)}, Field{"y", String("a")})},
		{"typed", Typed("geom.Point", Field{"x", Number(1)}, Field{"y", Number(2)})},
		{"array", Array(Int(1), Null(), Array(String("nested")))},
	}
	for _, tt := range tests {
		if got := roundTrip(t, tt.node); !Equal(got, tt.node) {
			t.Errorf("%s: round trip = %+v, want %+v", tt.name, got, tt.node)
		}
	}
}

func TestFieldOrderSurvives(t *testing.T) {
	n := Object(Field{"z", Int(1)}, Field{"a", Int(2)}, Field{"m", Int(3)})
	got := roundTrip(t, n)
	want := []string{"z", "a", "m"}
	for i, f := range got.Fields {
		if f.Name != want[i] {
			t.Errorf("Fields[%d] = %q, want %q", i, f.Name, want[i])
		}
	}
}

func TestRefMustPointBackwards(t *testing.T) {
	self := Object(Field{"self", Ref(0)})
	if got := roundTrip(t, self); !Equal(got, self) {
		t.Errorf("self reference lost: %+v", got)
	}
	if _, err := Marshal(Object(Field{"bad", Ref(3)})); err == nil {
		t.Error("forward reference accepted")
	}
}

func TestUnknownKindRejected(t *testing.T) {
	_, err := Marshal(Node{Kind: Kind(200)})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("err = %v, want ErrUnsupportedKind", err)
	}
}

func TestGet(t *testing.T) {
	n := Object(Field{"x", Int(1)})
	if v, ok := n.Get("x"); !ok || v.Int != 1 {
		t.Errorf("Get(x) = %+v, %v", v, ok)
	}
	if _, ok := n.Get("y"); ok {
		t.Error("Get(y) found a missing field")
	}
}
