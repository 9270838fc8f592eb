package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestProperty_ResolveReviewRoutingIsPureAndMatchesTable checks spec §8's
// routing-resolution invariant: for any (policy, level) pair, resolving the
// routing twice in a row agrees, and the result always matches the
// documented policy table exactly, with no other label ever produced.
func TestProperty_ResolveReviewRoutingIsPureAndMatchesTable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := rapid.SampledFrom([]ReviewPolicy{PolicyHuman, PolicyAgent, PolicyAuto, PolicySkip}).Draw(t, "policy")
		level := rapid.SampledFrom([]string{"junior", "medior", "senior", "", "lead"}).Draw(t, "level")

		first := ResolveReviewRouting(policy, level)
		second := ResolveReviewRouting(policy, level)
		require.Equal(t, first, second, "ResolveReviewRouting must be a pure function of (policy, level)")

		switch policy {
		case PolicyHuman:
			require.Equal(t, RouteReviewHuman, first)
		case PolicyAgent:
			require.Equal(t, RouteReviewAgent, first)
		case PolicySkip:
			require.Equal(t, RouteTestSkip, first)
		case PolicyAuto:
			if level == "senior" {
				require.Equal(t, RouteReviewHuman, first)
			} else {
				require.Equal(t, RouteReviewAgent, first)
			}
		}

		require.Contains(t, []ReviewRouting{RouteReviewHuman, RouteReviewAgent, RouteTestSkip}, first)
	})
}
