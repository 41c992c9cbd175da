package episode

import "fmt"

// ConfigurationError reports a roster or settings problem found at setup.
// A coordinator is never created from an invalid configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "episode: configuration: " + e.Reason
}

// ProtocolViolation reports a call that does not match the registered roster,
// such as a capture naming an agent of the wrong faction. The coordinator
// rejects the call without changing any state.
type ProtocolViolation struct {
	Op      string
	AgentID uint32
	Reason  string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("episode: %s: agent %d: %s", e.Op, e.AgentID, e.Reason)
}
