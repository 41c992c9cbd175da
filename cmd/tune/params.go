package main

import (
	"github.com/pthm-cable/pursuit/config"
)

// speedBound is the search interval of one motion speed.
type speedBound struct {
	name   string
	lo, hi float64
	field  func(m *config.MotionConfig) *float64
}

// motionSpace maps points of the unit cube searched by CMA-ES onto motion
// configs. Coordinates outside [0, 1] are clamped to the nearest bound.
type motionSpace []speedBound

func newMotionSpace() motionSpace {
	return motionSpace{
		{"predator_move_speed", 1, 10, func(m *config.MotionConfig) *float64 { return &m.PredatorMoveSpeed }},
		{"predator_rotate_speed", 0.5, 6, func(m *config.MotionConfig) *float64 { return &m.PredatorRotateSpeed }},
		{"prey_move_speed", 1, 10, func(m *config.MotionConfig) *float64 { return &m.PreyMoveSpeed }},
		{"prey_rotate_speed", 0.5, 6, func(m *config.MotionConfig) *float64 { return &m.PreyRotateSpeed }},
	}
}

// encode places m in the unit cube.
func (ms motionSpace) encode(m config.MotionConfig) []float64 {
	x := make([]float64, len(ms))
	for i, b := range ms {
		x[i] = (*b.field(&m) - b.lo) / (b.hi - b.lo)
	}
	return x
}

// decode turns a search point into motion speeds inside their bounds.
func (ms motionSpace) decode(x []float64) config.MotionConfig {
	var m config.MotionConfig
	for i, b := range ms {
		*b.field(&m) = b.lo + clamp01(x[i])*(b.hi-b.lo)
	}
	return m
}
