package meade

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParseSexagesimal(t *testing.T) {
	for _, test := range []struct {
		input string
		want  float64
		ok    bool
	}{
		{"+10:30:00", 10.5, true},
		{"-05:30:00", -5.5, true},
		{"10:30:00", 10.5, true},
		{"+28\xdf45:00", 28.75, true},
		{"-17*52'45", -17.879166666666666, true},
		{"71:09", 71.15, true},
		{"+45*10'", 45.166666666666664, true},
		{"10:30.5:00", 10.508333333333333, true},
		{" +10:30:00 ", 10.5, true},
		{"", 0, false},
		{"10", 0, false},
		{"10:xx:00", 0, false},
		{"10:-5:00", 0, false},
		{"1:2:3:4", 0, false},
	} {
		t.Run(test.input, func(t *testing.T) {
			got, err := parseSexagesimal(test.input)
			if (err == nil) != test.ok {
				t.Fatalf("parseSexagesimal(%q) error: %v", test.input, err)
			}
			if !test.ok {
				return
			}
			if diff := cmp.Diff(got, test.want, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("unexpected angle: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestParseHours(t *testing.T) {
	got, err := parseHours("10:30:00")
	if err != nil {
		t.Fatalf("parseHours failed: %v", err)
	}
	if diff := cmp.Diff(got, 157.5, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("unexpected degrees: got(-)/want(+):\n%s", diff)
	}
}

func TestFormatHours(t *testing.T) {
	for _, test := range []struct {
		deg  float64
		want string
	}{
		{157.5, "10:30:00"},
		{0, "00:00:00"},
		{359.9999999, "00:00:00"},
		{-15, "23:00:00"},
	} {
		if got := formatHours(test.deg); got != test.want {
			t.Errorf("formatHours(%v) = %q, want %q", test.deg, got, test.want)
		}
	}
}

func TestFormatSignedDegrees(t *testing.T) {
	for _, test := range []struct {
		deg  float64
		want string
	}{
		{10.5, "+10\xdf30:00"},
		{-5.5, "-05\xdf30:00"},
		{-0.25, "-00\xdf15:00"},
		{0, "+00\xdf00:00"},
	} {
		if got := formatSignedDegrees(test.deg); got != test.want {
			t.Errorf("formatSignedDegrees(%v) = %q, want %q", test.deg, got, test.want)
		}
	}
}

func TestFormatDegrees(t *testing.T) {
	for _, test := range []struct {
		deg  float64
		want string
	}{
		{180.25, "180\xdf15:00"},
		{5, "005\xdf00:00"},
		{-90, "270\xdf00:00"},
		{360, "000\xdf00:00"},
	} {
		if got := formatDegrees(test.deg); got != test.want {
			t.Errorf("formatDegrees(%v) = %q, want %q", test.deg, got, test.want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, deg := range []float64{0, 10.5, 157.5, 359.75} {
		got, err := parseHours(formatHours(deg))
		if err != nil {
			t.Fatalf("parseHours(formatHours(%v)) failed: %v", deg, err)
		}
		if diff := cmp.Diff(got, deg, cmpopts.EquateApprox(0, 15.0/3600)); diff != "" {
			t.Errorf("hours round trip: got(-)/want(+):\n%s", diff)
		}
	}
	for _, deg := range []float64{-89.9, -0.25, 0, 45.125, 89.9} {
		got, err := parseSexagesimal(formatSignedDegrees(deg))
		if err != nil {
			t.Fatalf("parseSexagesimal(formatSignedDegrees(%v)) failed: %v", deg, err)
		}
		if diff := cmp.Diff(got, deg, cmpopts.EquateApprox(0, 1.0/3600)); diff != "" {
			t.Errorf("degrees round trip: got(-)/want(+):\n%s", diff)
		}
	}
}
