package server

import (
	"math"
	"testing"

	"github.com/kestrel-observatory/mountd/meade"
)

func TestLimitsCheck(t *testing.T) {
	l := Limits{HAMin: -85, HAMax: 85, DecMin: -45, DecMax: 85}
	for _, test := range []struct {
		name string
		ha   float64
		dec  float64
		want meade.CommandStatus
	}{
		{"inside", 0, 20, meade.Succeeded},
		{"ha_min_boundary", -85, 0, meade.Succeeded},
		{"ha_max_boundary", 85, 0, meade.Succeeded},
		{"dec_min_boundary", 0, -45, meade.Succeeded},
		{"dec_max_boundary", 0, 85, meade.Succeeded},
		{"below_ha_min", math.Nextafter(-85, -86), 0, meade.OutsideHALimits},
		{"above_ha_max", math.Nextafter(85, 86), 0, meade.OutsideHALimits},
		{"below_dec_min", 0, math.Nextafter(-45, -46), meade.OutsideDecLimits},
		{"above_dec_max", 0, math.Nextafter(85, 86), meade.OutsideDecLimits},
		{"ha_reported_before_dec", 120, 120, meade.OutsideHALimits},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := l.Check(test.ha, test.dec); got != test.want {
				t.Errorf("Check(%v, %v) = %d, want %d", test.ha, test.dec, got, test.want)
			}
		})
	}
}
