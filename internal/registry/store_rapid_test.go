package registry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestProperty_PutProjectRoundTripIsIdempotent checks spec §8's idempotent
// registry round-trip invariant: writing the same project twice in a row
// leaves the registry in exactly the state a single write would have, and
// reading it back always reproduces the fields that were put in.
func TestProperty_PutProjectRoundTripIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir, err := os.MkdirTemp("", "registry-rapid-*")
		require.NoError(t, err)
		defer os.RemoveAll(dir)

		project := &Project{
			Slug:         rapid.StringMatching(`[a-z][a-z0-9-]{0,15}`).Draw(t, "slug"),
			Name:         rapid.StringMatching(`[A-Za-z0-9 ]{1,20}`).Draw(t, "name"),
			Repo:         rapid.StringMatching(`[a-z][a-z0-9-]{0,10}/[a-z][a-z0-9-]{0,10}`).Draw(t, "repo"),
			BaseBranch:   rapid.SampledFrom([]string{"main", "master", "develop"}).Draw(t, "baseBranch"),
			DeployBranch: rapid.SampledFrom([]string{"", "main", "release"}).Draw(t, "deployBranch"),
			Provider:     rapid.SampledFrom([]string{"github", "gitlab"}).Draw(t, "provider"),
			Workers:      map[string]RoleWorker{},
		}

		require.NoError(t, PutProject(dir, project))
		firstRead, err := ReadProjects(dir)
		require.NoError(t, err)
		firstRaw, err := readRaw(dir)
		require.NoError(t, err)

		// Putting the exact same project again must be a no-op on disk: the
		// marshaled bytes are byte-for-byte identical the second time.
		require.NoError(t, PutProject(dir, project))
		secondRaw, err := readRaw(dir)
		require.NoError(t, err)
		require.Equal(t, firstRaw, secondRaw)

		secondRead, err := ReadProjects(dir)
		require.NoError(t, err)
		require.Equal(t, firstRead[project.Slug], secondRead[project.Slug])
		require.Equal(t, project.Slug, secondRead[project.Slug].Slug)
		require.Equal(t, project.Repo, secondRead[project.Slug].Repo)
		require.Equal(t, project.Provider, secondRead[project.Slug].Provider)
	})
}

// TestProperty_PutProjectPreservesOtherSlugs checks that registering one
// project never disturbs any other project already in the registry —
// PutProject only ever touches the one slug keyed by project.Slug.
func TestProperty_PutProjectPreservesOtherSlugs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir, err := os.MkdirTemp("", "registry-rapid-*")
		require.NoError(t, err)
		defer os.RemoveAll(dir)

		slugA := rapid.StringMatching(`[a-z][a-z0-9-]{0,10}`).Draw(t, "slugA")
		slugB := rapid.StringMatching(`[a-z][a-z0-9-]{0,10}`).Draw(t, "slugB")
		if slugA == slugB {
			return
		}

		projA := &Project{Slug: slugA, Name: slugA, Repo: "o/r", Provider: "github", Workers: map[string]RoleWorker{}}
		require.NoError(t, PutProject(dir, projA))

		projB := &Project{Slug: slugB, Name: slugB, Repo: "o/r2", Provider: "gitlab", Workers: map[string]RoleWorker{}}
		require.NoError(t, PutProject(dir, projB))

		projects, err := ReadProjects(dir)
		require.NoError(t, err)
		require.Contains(t, projects, slugA)
		require.Contains(t, projects, slugB)
		require.Equal(t, "o/r", projects[slugA].Repo)
		require.Equal(t, "o/r2", projects[slugB].Repo)
	})
}
