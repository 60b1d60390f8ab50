package audio

import "testing"

// pcm16 packs int16 samples into little-endian bytes.
func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func TestResampleSameRateUnchanged(t *testing.T) {
	in := pcm16(100, 200, 300)
	out := Resample(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Error("same-rate resample should return the input slice unchanged")
	}
}

func TestResampleHalvesSampleCount(t *testing.T) {
	in := pcm16(0, 100, 200, 300, 400, 500, 600, 700)
	out := Resample(in, 48000, 24000)
	if len(out) != len(in)/2 {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in)/2)
	}
}

func TestResampleDoublesSampleCount(t *testing.T) {
	in := pcm16(0, 1000, 2000, 3000)
	out := Resample(in, 12000, 24000)
	if len(out) != len(in)*2 {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in)*2)
	}
	// Linear interpolation between 0 and 1000 must produce an intermediate
	// value, not a copy of either endpoint.
	mid := int16(out[2]) | int16(out[3])<<8
	if mid <= 0 || mid >= 1000 {
		t.Errorf("interpolated sample = %d, want within (0, 1000)", mid)
	}
}

func TestResampleFrameTagsNewRate(t *testing.T) {
	frame := Frame{Data: pcm16(1, 2, 3, 4), SampleRate: 48000}
	got := ResampleFrame(frame, 16000)
	if got.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", got.SampleRate)
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{"silence", pcm16(0, 0, 0), 0},
		{"full scale negative", pcm16(-32768), 1.0},
		{"quiet", pcm16(16, -20, 8), 20.0 / 32768.0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := peak(tt.pcm); got != tt.want {
				t.Errorf("peak = %v, want %v", got, tt.want)
			}
		})
	}
}
