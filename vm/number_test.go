package vm

import (
	"math"
	"testing"
)

func TestNumberToString(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-42, "-42"},
		{0.1, "0.1"},
		{1.5, "1.5"},
		{1e21, "1e+21"},
		{123456789012345680000, "123456789012345680000"},
		{1e-7, "1e-7"},
		{0.000001, "0.000001"},
		{1.25e-7, "1.25e-7"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := NumberToString(tt.in); got != tt.want {
			t.Errorf("NumberToString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNumberToInt32(t *testing.T) {
	tests := []struct {
		in   float64
		want int32
	}{
		{0, 0},
		{1.9, 1},
		{-1.9, -1},
		{4294967295, -1},
		{2147483648, -2147483648},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		if got := NumberToInt32(tt.in); got != tt.want {
			t.Errorf("NumberToInt32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := NumberToUint32(-1); got != 4294967295 {
		t.Errorf("NumberToUint32(-1) = %d, want 4294967295", got)
	}
}

func TestStringToNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"  12  ", 12},
		{"0x1F", 31},
		{"-3.5", -3.5},
		{"1e3", 1000},
	}
	for _, tt := range tests {
		if got := StringToNumber(tt.in); got != tt.want {
			t.Errorf("StringToNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, in := range []string{"abc", "1x", "--1"} {
		if got := StringToNumber(in); !math.IsNaN(got) {
			t.Errorf("StringToNumber(%q) = %v, want NaN", in, got)
		}
	}
}

func TestFormatFixed(t *testing.T) {
	tests := []struct {
		in     float64
		digits int
		want   string
	}{
		{0.5, 0, "1"},
		{2.5, 0, "3"},
		{-1.5, 0, "-2"},
		{1.25, 1, "1.3"},
		{1.005, 2, "1.00"},
		{3.14159, 3, "3.142"},
		{-0.0001, 2, "0.00"},
		{1e21, 2, "1e+21"},
		{math.NaN(), 2, "NaN"},
	}
	for _, tt := range tests {
		if got := FormatFixed(tt.in, tt.digits); got != tt.want {
			t.Errorf("FormatFixed(%v, %d) = %q, want %q", tt.in, tt.digits, got, tt.want)
		}
	}
}

func TestFormatExponentialAndPrecision(t *testing.T) {
	if got := FormatExponential(123456, 2); got != "1.23e+5" {
		t.Errorf("FormatExponential = %q, want 1.23e+5", got)
	}
	if got := FormatExponential(0.00015, 1); got != "1.5e-4" {
		t.Errorf("FormatExponential = %q, want 1.5e-4", got)
	}
	tests := []struct {
		in   float64
		p    int
		want string
	}{
		{123.456, 4, "123.5"},
		{0.000123, 2, "0.00012"},
		{123456, 2, "1.2e+5"},
		{0, 3, "0.00"},
	}
	for _, tt := range tests {
		if got := FormatPrecision(tt.in, tt.p); got != tt.want {
			t.Errorf("FormatPrecision(%v, %d) = %q, want %q", tt.in, tt.p, got, tt.want)
		}
	}
}

func TestNumberToRadixString(t *testing.T) {
	tests := []struct {
		in    float64
		radix int
		want  string
	}{
		{255, 16, "ff"},
		{-8, 2, "-1000"},
		{0.5, 2, "0.1"},
		{35, 36, "z"},
		{10, 10, "10"},
	}
	for _, tt := range tests {
		if got := NumberToRadixString(tt.in, tt.radix); got != tt.want {
			t.Errorf("NumberToRadixString(%v, %d) = %q, want %q", tt.in, tt.radix, got, tt.want)
		}
	}
}

func TestNumberMethodsRangeErrors(t *testing.T) {
	vm := newTestVM(t, Options{})
	tests := []struct {
		method string
		arg    Value
		id     int
	}{
		{"toString", Int(1), 1003},
		{"toString", Int(37), 1003},
		{"toFixed", Int(21), 1002},
		{"toPrecision", Int(0), 1002},
		{"toExponential", Int(-1), 1002},
	}
	for _, tt := range tests {
		_, err := vm.Invoke(Number(1.5), tt.method, tt.arg)
		scriptError(t, err, "RangeError", tt.id)
	}
	got, err := vm.Invoke(Int(255), "toString", Int(16))
	if err != nil {
		t.Fatalf("toString(16): %v", err)
	}
	if got.AsString() != "ff" {
		t.Errorf("(255).toString(16) = %v, want ff", got)
	}
}

func TestMathMaxMin(t *testing.T) {
	vm := newTestVM(t, Options{})
	math_ := mustDefinition(t, vm, "Math")
	got, err := vm.Invoke(math_, "max", Int(1), Number(3.5), Int(2))
	if err != nil {
		t.Fatalf("max: %v", err)
	}
	if got.Float() != 3.5 {
		t.Errorf("Math.max = %v, want 3.5", got)
	}
	got, _ = vm.Invoke(math_, "min", Int(1), Number(math.NaN()))
	if !math.IsNaN(got.Float()) {
		t.Errorf("Math.min with NaN = %v, want NaN", got)
	}
	got, _ = vm.Invoke(math_, "max")
	if !math.IsInf(got.Float(), -1) {
		t.Errorf("Math.max() = %v, want -Infinity", got)
	}
	got, _ = vm.Invoke(math_, "round", Number(-2.5))
	if got.Float() != -2 {
		t.Errorf("Math.round(-2.5) = %v, want -2", got)
	}
	_, err = vm.Construct("Math")
	scriptError(t, err, "TypeError", 1076)
}
