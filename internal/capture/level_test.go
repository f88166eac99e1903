package capture

import (
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
		tol     float64
	}{
		{"empty", nil, 0, 0},
		{"silence", make([]int16, 256), 0, 0},
		{"full scale square", repeat(32767, 256), 1.0, 0.001},
		{"half scale square", repeat(16384, 256), 0.5, 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rms(tt.samples)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("rms: want %v (±%v), got %v", tt.want, tt.tol, got)
			}
		})
	}
}

func TestMeterLevel(t *testing.T) {
	tests := []struct {
		name      string
		amplitude float64
		want      float64
		tol       float64
	}{
		{"silence", 0, 0, 0},
		{"negative amplitude clamps", -0.5, 0, 0},
		{"full scale is 1", 1.0, 1.0, 0.0001},
		{"above full scale clamps", 2.0, 1.0, 0},
		{"-60 dB is the floor", 0.001, 0, 0.0001},
		{"below floor clamps to 0", 0.0001, 0, 0},
		{"-30 dB is midpoint", math.Pow(10, -30.0/20), 0.5, 0.0001},
		{"-6 dB", math.Pow(10, -6.0/20), 0.9, 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := meterLevel(tt.amplitude)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("meterLevel(%v): want %v (±%v), got %v", tt.amplitude, tt.want, tt.tol, got)
			}
		})
	}
}

func repeat(v int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}
