package scan

import "fmt"

// Phase is the scan lifecycle state.
type Phase int

// Lifecycle: Idle → Scanning → {Paused ⇄ Scanning} → {Completed | Cancelled | Failed}.
// The next Start re-enters Scanning from any terminal phase.
const (
	Idle Phase = iota
	Scanning
	Paused
	Completed
	Cancelled
	Failed
)

var phaseNames = [...]string{"idle", "scanning", "paused", "completed", "cancelled", "failed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Active reports whether a scan is in flight.
func (p Phase) Active() bool { return p == Scanning || p == Paused }

// Terminal reports whether p ends a scan.
func (p Phase) Terminal() bool { return p == Completed || p == Cancelled || p == Failed }

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
