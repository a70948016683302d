package monitor

import (
	"sort"
	"time"
)

// Component is the last probe result for one dependency.
type Component struct {
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

type Status struct {
	Components map[string]Component `json:"components"`
	Online     bool                 `json:"online"`
	Buffer     bool                 `json:"buffer"`
	BufferSize int                  `json:"buffer_size"`
	LastCheck  time.Time            `json:"last_check"`
}

// Degraded returns the failing component names in order.
func (s Status) Degraded() []string {
	var names []string
	for name, c := range s.Components {
		if !c.OK {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
