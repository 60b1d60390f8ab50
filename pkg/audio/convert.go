package audio

// Resample converts PCM16 mono data from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If the rates
// match or the input is too short to interpolate, the input is returned
// unchanged.
//
// Capture and synthesis frames run at different rates in this system; the
// playback pipeline resamples synthesis output to the sink's device rate
// before writing.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// ResampleFrame returns frame converted to dstRate. Frames already at the
// target rate are returned unchanged with zero allocation.
func ResampleFrame(frame Frame, dstRate int) Frame {
	if frame.SampleRate == dstRate {
		return frame
	}
	return Frame{
		Data:       Resample(frame.Data, frame.SampleRate, dstRate),
		SampleRate: dstRate,
		Timestamp:  frame.Timestamp,
	}
}

// peak returns the largest absolute sample value in pcm, normalised to
// [0, 1] of full scale. Odd trailing bytes are ignored.
func peak(pcm []byte) float64 {
	var max int32
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(int16(pcm[i]) | int16(pcm[i+1])<<8)
		if s < 0 {
			s = -s
		}
		if s > max {
			max = s
		}
	}
	return float64(max) / 32768.0
}
