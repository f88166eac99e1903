package capture

import "math"

// dbFloor is the quietest signal the meter distinguishes from silence.
// −60 dBFS maps to 0.0 and 0 dBFS (full scale) to 1.0.
const dbFloor = -60.0

// rms returns the root-mean-square amplitude of a PCM frame, normalized so
// that a full-scale square wave yields 1.0.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// meterLevel maps an RMS amplitude onto the fixed dB floor, clamped to [0,1].
func meterLevel(amplitude float64) float64 {
	if amplitude <= 0 {
		return 0
	}
	db := 20 * math.Log10(amplitude)
	level := (db - dbFloor) / -dbFloor
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}
