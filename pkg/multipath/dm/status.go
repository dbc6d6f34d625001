// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"strconv"
	"strings"

	"github.com/stratastor/mpathd/pkg/errors"
)

// TargetMultipath is the device-mapper target type of multipath maps.
const TargetMultipath = "multipath"

// Path states as reported in the multipath status line
const (
	PathActive = "A"
	PathFailed = "F"
)

// Priority group states
const (
	GroupActive   = "A"
	GroupEnabled  = "E"
	GroupDisabled = "D"
)

// MultipathStatus is the parsed status line of a multipath target.
type MultipathStatus struct {
	Features       []string    `json:"features"`
	HWHandler      []string    `json:"hw_handler"`
	NextGroup      int         `json:"next_group"`
	PriorityGroups []PathGroup `json:"priority_groups"`
}

type PathGroup struct {
	State         string   `json:"state"`
	SelectorState []string `json:"selector_state,omitempty"`
	Paths         []Path   `json:"paths"`
}

type Path struct {
	Device        string   `json:"device"`
	State         string   `json:"state"`
	FailCount     int      `json:"fail_count"`
	SelectorState []string `json:"selector_state,omitempty"`
}

// ActivePaths counts paths the kernel currently considers usable.
func (s *MultipathStatus) ActivePaths() int {
	n := 0
	for _, g := range s.PriorityGroups {
		for _, p := range g.Paths {
			if p.State == PathActive {
				n++
			}
		}
	}
	return n
}

// TotalPaths counts all paths across priority groups.
func (s *MultipathStatus) TotalPaths() int {
	n := 0
	for _, g := range s.PriorityGroups {
		n += len(g.Paths)
	}
	return n
}

// ParseMultipathStatus parses the params of a multipath target status:
//
//	<#features> <features...> <#hw args> <hw args...> <#groups> <next group>
//	  { <state> <#ps args> <ps args...> <#paths> <#ps path args>
//	    { <dev> <A|F> <fail count> <ps path args...> } }
func ParseMultipathStatus(params string) (*MultipathStatus, error) {
	s := &statusScanner{fields: strings.Fields(params)}

	st := &MultipathStatus{}
	st.Features = s.counted()
	st.HWHandler = s.counted()

	nGroups := s.num()
	st.NextGroup = s.num()
	for g := 0; g < nGroups && s.err == nil; g++ {
		group := PathGroup{State: s.word()}
		group.SelectorState = s.counted()

		nPaths := s.num()
		nArgs := s.num()
		for p := 0; p < nPaths && s.err == nil; p++ {
			path := Path{
				Device: s.word(),
				State:  s.word(),
			}
			path.FailCount = s.num()
			path.SelectorState = s.take(nArgs)
			group.Paths = append(group.Paths, path)
		}
		st.PriorityGroups = append(st.PriorityGroups, group)
	}

	if s.err != nil {
		return nil, s.err.WithMetadata("params", params)
	}
	return st, nil
}

type statusScanner struct {
	fields []string
	pos    int
	err    *errors.MpathdError
}

func (s *statusScanner) word() string {
	if s.err != nil {
		return ""
	}
	if s.pos >= len(s.fields) {
		s.err = errors.New(errors.DMParseFailed, "unexpected end of status").
			WithMetadata("position", strconv.Itoa(s.pos))
		return ""
	}
	w := s.fields[s.pos]
	s.pos++
	return w
}

func (s *statusScanner) num() int {
	w := s.word()
	if s.err != nil {
		return 0
	}
	n, err := strconv.Atoi(w)
	if err != nil || n < 0 {
		s.err = errors.New(errors.DMParseFailed, "expected count").
			WithMetadata("position", strconv.Itoa(s.pos-1)).
			WithMetadata("value", w)
		return 0
	}
	return n
}

func (s *statusScanner) take(n int) []string {
	if n == 0 || s.err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.word())
	}
	if s.err != nil {
		return nil
	}
	return out
}

// counted reads "<n> <arg1> ... <argn>".
func (s *statusScanner) counted() []string {
	return s.take(s.num())
}
