package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // rounds half away from zero
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.004", "", false}, // rounds to zero
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(amount(tc.out)) {
				t.Errorf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Errorf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestParseSignedAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1.23", "1.23", true},
		{"-1.23", "-1.23", true},
		{"0", "0", true},
		{"-0,50", "-0.5", true},
		{"-120.005", "-120.01", true},
		{"+1", "", false},
		{"--1", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseSignedAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(amount(tc.out)) {
				t.Errorf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Errorf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestRoundCents(t *testing.T) {
	cases := []struct{ in, out string }{
		{"1.005", "1.01"},
		{"-1.005", "-1.01"},
		{"1.004", "1"},
		{"10.10", "10.1"},
	}
	for _, tc := range cases {
		if got := RoundCents(amount(tc.in)); !got.Equal(amount(tc.out)) {
			t.Errorf("RoundCents(%s) = %s, want %s", tc.in, got, tc.out)
		}
	}
}
