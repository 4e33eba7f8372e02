// ABOUTME: Approval modes: normal (ask), yolo (approve everything), plan (dry run)
// ABOUTME: Parsed from CLI flags and configuration

package approval

import "fmt"

// Mode determines how write-class steps are approved.
type Mode int

const (
	ModeNormal Mode = iota // Ask through the AskFunc
	ModeYolo               // Approve without asking
	ModePlan               // Dry run: deny every write-class step
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeYolo:
		return "yolo"
	case ModePlan:
		return "plan"
	default:
		return "unknown"
	}
}

// ParseMode maps a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "normal":
		return ModeNormal, nil
	case "yolo":
		return ModeYolo, nil
	case "plan":
		return ModePlan, nil
	default:
		return ModeNormal, fmt.Errorf("unknown approval mode %q (want normal, yolo, or plan)", s)
	}
}
