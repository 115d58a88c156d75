package domain

import (
	"fmt"
	"time"
)

// TargetID names one probed entity: AllTargets for the aggregate handle,
// otherwise the server address.
type TargetID string

// AllTargets is the ID of the target addressed at every configured server.
const AllTargets TargetID = "all"

// Kind classifies a probe outcome.
type Kind int

const (
	Success Kind = iota
	Mismatch
	Error
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Mismatch:
		return "mismatch"
	case Error:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*k = Success
	case "mismatch":
		*k = Mismatch
	case "error":
		*k = Error
	default:
		return fmt.Errorf("unknown outcome kind %q", string(b))
	}
	return nil
}

// Outcome is the classified result of probing one target in one round.
//
// Latency is set only for Success and covers the read step alone.
// Detail is set only for Mismatch and Error. CleanupErr records a failed
// delete of the probe key and never changes Kind. Abandoned marks an Error
// recorded for a target that was skipped because its round was cancelled;
// the target's handle was not touched.
type Outcome struct {
	Target     TargetID      `json:"target"`
	Kind       Kind          `json:"kind"`
	Latency    time.Duration `json:"latency_ns,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	CleanupErr string        `json:"cleanup_error,omitempty"`
	Abandoned  bool          `json:"abandoned,omitempty"`
	Round      uint64        `json:"round"`
	CheckedAt  time.Time     `json:"checked_at"`
}

func (o Outcome) OK() bool { return o.Kind == Success }
