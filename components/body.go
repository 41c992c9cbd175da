package components

// Body holds the circular collider used for contact and ray hits.
type Body struct {
	Radius float32
}

// Motion holds movement limits for an entity.
type Motion struct {
	MoveSpeed   float32 // units per second at full forward action
	RotateSpeed float32 // degrees per step at full turn action
}

// Action is the continuous action applied to an agent for one step.
// Both channels are clamped to [-1, 1] when applied.
type Action struct {
	Forward float32
	Turn    float32
}
