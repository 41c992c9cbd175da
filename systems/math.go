package systems

// clampf clamps a float32 value between min and max.
func clampf(v, minVal, maxVal float32) float32 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// clamp1 clamps an action channel to [-1, 1].
func clamp1(v float32) float32 {
	return clampf(v, -1, 1)
}
