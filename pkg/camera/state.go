package camera

// State is the lifecycle state of a capture session.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateConfiguring
	StateStreaming
	StateClosing
	StateClosed
	StateError
)

// String returns a lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// settled reports whether setup has finished, one way or another.
func (s State) settled() bool {
	return s == StateStreaming || s == StateError || s == StateClosed
}

// canFail reports whether a fatal error may move s to StateError.
func (s State) canFail() bool {
	return s == StateOpening || s == StateConfiguring || s == StateStreaming
}
