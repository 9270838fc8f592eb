// Package dispatch implements the three-phase dispatch pipeline (spec
// §4.5, C5): pure setup, a single atomic label-transition commitment, and
// best-effort post-commitment side effects.
package dispatch

import (
	"fmt"
	"hash/fnv"
)

// slotNames is the stable lookup table SlotName indexes into. It is a
// closed, fixed list rather than a random generator: the same
// (role, level, index) must always produce the same name so a
// deterministic session key survives process restarts.
var slotNames = []string{
	"cordelia", "beatrice", "rosalind", "viola", "portia",
	"miranda", "perdita", "hermia", "helena", "imogen",
	"octavia", "lavinia", "ophelia", "juliet", "titania",
	"goneril", "regan", "celia", "audrey", "paulina",
}

// SlotName derives a stable human-readable name for (role, level, index),
// used both in the role-level label and the deterministic session key
// (spec §4.5 step 3, §3.6). The same triple always yields the same name.
func SlotName(role, level string, index int) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(role + ":" + level))
	seed := int(h.Sum32())
	pick := (seed + index) % len(slotNames)
	if pick < 0 {
		pick += len(slotNames)
	}
	name := slotNames[pick]
	// Disambiguate beyond the table's size instead of colliding silently.
	if cycles := index / len(slotNames); cycles > 0 {
		return fmt.Sprintf("%s%d", name, cycles)
	}
	return name
}

// DeterministicSessionKey builds the shape agent:<agentId>:subagent:
// <project>-<role>-<level>-<slotName> (spec §4.5 step 3). agentID defaults
// to "unknown" when the caller has none.
func DeterministicSessionKey(agentID, project, role, level, slotName string) string {
	if agentID == "" {
		agentID = "unknown"
	}
	return fmt.Sprintf("agent:%s:subagent:%s-%s-%s-%s", agentID, project, role, level, slotName)
}
