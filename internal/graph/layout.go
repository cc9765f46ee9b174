// Package graph assigns commits to lanes so ancestry lines can be drawn
// without crossing ambiguity, and renders them as terminal rows.
package graph

import (
	"github.com/zjrosen/lanes/internal/git"
)

// PaletteSize is the number of distinct lane colours.
const PaletteSize = 8

// SegmentKind is the drawing case of a connector.
type SegmentKind int

const (
	// Straight connects commit and parent on the same lane.
	Straight SegmentKind = iota
	// BranchOut joins a first parent that sits on another lane.
	BranchOut
	// MergeIn joins a non-first parent of a merge on another lane.
	MergeIn
)

func (k SegmentKind) String() string {
	switch k {
	case Straight:
		return "straight"
	case BranchOut:
		return "branch-out"
	case MergeIn:
		return "merge-in"
	default:
		return "unknown"
	}
}

// Segment connects a commit to one of its parents.
type Segment struct {
	From     string // Child commit id
	To       string // Parent commit id
	FromLane int
	ToLane   int // Parent lane; for off-window parents the lane held open for it
	// Track is the lane the connector runs on between the two rows.
	Track int
	Kind  SegmentKind
	// OffWindow marks a parent outside the laid out commits.
	OffWindow bool
}

// Assignment is the result of one layout pass.
type Assignment struct {
	Lanes     map[string]int
	Segments  []Segment
	LaneCount int
}

// Lane returns the lane of id and whether it was laid out.
func (a Assignment) Lane(id string) (int, bool) {
	lane, ok := a.Lanes[id]
	return lane, ok
}

// Color returns the palette index for a lane.
func (a Assignment) Color(lane int) int {
	return lane % PaletteSize
}

// SegmentColor returns the palette index of a connector: merge connectors
// take the colour of the lane they arrive from, the others their child's.
func (a Assignment) SegmentColor(s Segment) int {
	if s.Kind == MergeIn {
		return a.Color(s.Track)
	}
	return a.Color(s.FromLane)
}

// laneSet tracks which commit each live lane is waiting for.
type laneSet struct {
	awaiting []string // "" marks a free lane
	high     int      // high-water mark of lane indices used
}

// take returns the smallest free lane, growing the set when none is free.
func (s *laneSet) take() int {
	for i, id := range s.awaiting {
		if id == "" {
			s.use(i)
			return i
		}
	}
	s.awaiting = append(s.awaiting, "")
	s.use(len(s.awaiting) - 1)
	return len(s.awaiting) - 1
}

func (s *laneSet) use(lane int) {
	if lane+1 > s.high {
		s.high = lane + 1
	}
}

// find returns the smallest lane awaiting id, or -1.
func (s *laneSet) find(id string) int {
	for i, awaited := range s.awaiting {
		if awaited == id {
			return i
		}
	}
	return -1
}

// Layout assigns lanes in a single pass over commits in display order
// (newest first).
//
// A commit awaited on several lanes takes the smallest and the others are
// released; an unawaited commit takes the smallest free lane. The first
// parent continues the commit's lane; every further parent joins the lane
// already awaiting it or gets the smallest free lane, in parent order. A
// commit whose lane no parent continues retires it. Parents outside the
// window keep their lane open to the end and record no assignment.
// Duplicate commit ids after the first occurrence are ignored.
func Layout(commits []git.Commit) Assignment {
	a := Assignment{Lanes: make(map[string]int, len(commits))}

	inWindow := make(map[string]bool, len(commits))
	for _, c := range commits {
		inWindow[c.ID] = true
	}

	var (
		lanes   laneSet
		waiting = make(map[string][]int) // parent id -> segment indices
		first   []bool                   // per segment: first parent of its child
	)

	for _, c := range commits {
		if _, dup := a.Lanes[c.ID]; dup {
			continue
		}

		lane := -1
		for i, awaited := range lanes.awaiting {
			if awaited != c.ID {
				continue
			}
			if lane < 0 {
				lane = i
			}
			lanes.awaiting[i] = ""
		}
		if lane < 0 {
			lane = lanes.take()
		}
		a.Lanes[c.ID] = lane

		for _, si := range waiting[c.ID] {
			a.Segments[si].ToLane = lane
		}
		delete(waiting, c.ID)

		seen := make(map[string]bool, len(c.Parents))
		for j, p := range c.Parents {
			if seen[p] {
				continue
			}
			seen[p] = true

			seg := Segment{From: c.ID, To: p, FromLane: lane}

			if parentLane, visited := a.Lanes[p]; visited {
				// Parent dated after its child; it is already drawn above.
				seg.ToLane, seg.Track = parentLane, lane
				a.Segments = append(a.Segments, seg)
				first = append(first, j == 0)
				continue
			}

			track := lane
			if j == 0 {
				lanes.awaiting[lane] = p
			} else if existing := lanes.find(p); existing >= 0 {
				track = existing
			} else {
				track = lanes.take()
				lanes.awaiting[track] = p
			}
			seg.Track, seg.ToLane = track, track
			seg.OffWindow = !inWindow[p]

			if !seg.OffWindow {
				waiting[p] = append(waiting[p], len(a.Segments))
			}
			a.Segments = append(a.Segments, seg)
			first = append(first, j == 0)
		}
	}

	for i := range a.Segments {
		s := &a.Segments[i]
		switch {
		case s.FromLane == s.ToLane:
			s.Kind = Straight
		case first[i]:
			s.Kind = BranchOut
		default:
			s.Kind = MergeIn
		}
	}
	a.LaneCount = lanes.high
	return a
}
