package organizer

import (
	"fmt"
	"math/rand"
	"sort"
)

// Policy selects which connected worker a freshly-spawned entity lands on
// (spec §4.H "spawn_entity(prefab?, name?, policy)"; SPEC_FULL §4.H
// supplement adds RoundRobin and LeastLoaded beyond the distilled spec's
// Random default).
type Policy int

const (
	// Random picks uniformly among connected workers (spec §4.H default).
	Random Policy = iota
	// RoundRobin cycles workers in registration order.
	RoundRobin
	// LeastLoaded picks the worker owning the fewest routed entities, ties
	// broken by worker address ascending.
	LeastLoaded
)

func (p Policy) String() string {
	switch p {
	case Random:
		return "random"
	case RoundRobin:
		return "round_robin"
	case LeastLoaded:
		return "least_loaded"
	default:
		return "unknown"
	}
}

// ParsePolicy parses engineconfig's organizer.placement_policy value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "random":
		return Random, nil
	case "round_robin":
		return RoundRobin, nil
	case "least_loaded":
		return LeastLoaded, nil
	default:
		return 0, fmt.Errorf("organizer: unrecognized placement policy %q", s)
	}
}

// pick chooses a worker address from candidates (connected worker
// addresses, in registration order) per policy. load maps each candidate
// to its current routing-table entry count, used only by LeastLoaded.
func pick(policy Policy, candidates []string, rrIndex *int, load map[string]int) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	switch policy {
	case RoundRobin:
		i := *rrIndex % len(candidates)
		*rrIndex++
		return candidates[i], true

	case LeastLoaded:
		best := append([]string(nil), candidates...)
		sort.Strings(best)
		winner := best[0]
		for _, c := range best[1:] {
			if load[c] < load[winner] {
				winner = c
			}
		}
		return winner, true

	default: // Random
		return candidates[rand.Intn(len(candidates))], true
	}
}
