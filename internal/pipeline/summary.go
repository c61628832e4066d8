package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// StageStats counts what happened in one stage.
type StageStats struct {
	Name      string
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Summary describes a finished run.
type Summary struct {
	Requested int
	Stages    []StageStats
	Elapsed   time.Duration

	failures *multierror.Error
}

// Failed returns the number of keys that failed in any stage.
func (s *Summary) Failed() int {
	n := 0
	for _, st := range s.Stages {
		n += st.Failed
	}
	return n
}

// Err returns every per-key failure, or nil if there were none.
func (s *Summary) Err() error {
	return s.failures.ErrorOrNil()
}

// Stage returns the stats for the named stage.
func (s *Summary) Stage(name string) (StageStats, bool) {
	for _, st := range s.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return StageStats{}, false
}

func (s *Summary) fail(err error) {
	s.failures = multierror.Append(s.failures, err)
}

// String renders a one-line report such as
// "3 keys in 1.2s: fetch 2 ok / 1 failed, write 2 ok / 0 failed".
func (s *Summary) String() string {
	parts := make([]string, 0, len(s.Stages))
	for _, st := range s.Stages {
		parts = append(parts, fmt.Sprintf("%s %d ok / %d failed", st.Name, st.Succeeded, st.Failed))
	}
	return fmt.Sprintf("%d keys in %s: %s", s.Requested, s.Elapsed.Round(time.Millisecond), strings.Join(parts, ", "))
}
