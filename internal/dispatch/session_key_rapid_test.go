package dispatch

import (
	"testing"

	"pgregory.net/rapid"
)

// TestProperty_SessionKeyIsPureFunction checks spec §8's session-key purity
// invariant: given unchanged inputs, the deterministic session key is a
// pure function of (agentId, project.name, role, level, slotIndex) —
// computing it twice from the same inputs, in any order, always agrees.
func TestProperty_SessionKeyIsPureFunction(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		agentID := rapid.StringMatching(`[a-z0-9-]{0,12}`).Draw(t, "agentID")
		project := rapid.StringMatching(`[a-z][a-z0-9-]{0,15}`).Draw(t, "project")
		role := rapid.SampledFrom([]string{"developer", "reviewer", "tester"}).Draw(t, "role")
		level := rapid.SampledFrom([]string{"junior", "medior", "senior"}).Draw(t, "level")
		index := rapid.IntRange(0, 20).Draw(t, "index")

		slotName := SlotName(role, level, index)
		first := DeterministicSessionKey(agentID, project, role, level, slotName)
		second := DeterministicSessionKey(agentID, project, role, level, slotName)

		if first != second {
			t.Fatalf("DeterministicSessionKey is not pure: %q != %q", first, second)
		}

		// Recomputing SlotName independently must also agree, since it feeds
		// the key and has no hidden state of its own.
		if again := SlotName(role, level, index); again != slotName {
			t.Fatalf("SlotName is not pure: %q != %q", again, slotName)
		}
	})
}

// TestProperty_SessionKeyDiffersOnSlotIndex checks that two distinct slot
// indices for the same (role, level) never collide in the key they
// produce, which the orphaned-session scan (spec §4.6) depends on to tell
// slots apart.
func TestProperty_SessionKeyDiffersOnSlotIndex(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		role := rapid.SampledFrom([]string{"developer", "reviewer"}).Draw(t, "role")
		level := rapid.SampledFrom([]string{"junior", "medior", "senior"}).Draw(t, "level")
		a := rapid.IntRange(0, 50).Draw(t, "indexA")
		b := rapid.IntRange(0, 50).Draw(t, "indexB")
		if a == b {
			return
		}

		keyA := DeterministicSessionKey("agent", "proj", role, level, SlotName(role, level, a))
		keyB := DeterministicSessionKey("agent", "proj", role, level, SlotName(role, level, b))

		if keyA == keyB {
			t.Fatalf("distinct slot indices %d, %d produced the same session key %q", a, b, keyA)
		}
	})
}
