package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowforge/taskctl/internal/registry"
)

var (
	projectSlug         string
	projectName         string
	projectRepo         string
	projectBaseBranch   string
	projectDeployBranch string
	projectProvider     string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage the registry of projects the daemon dispatches against",
}

var projectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new project",
	Long: `Register a new project in the workspace's worker-state store.
Re-running add for an existing slug overwrites its repo/branch/provider
fields but leaves its worker slots untouched.`,
	RunE: runProjectAdd,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects as JSON",
	RunE:  runProjectList,
}

func init() {
	projectAddCmd.Flags().StringVar(&projectSlug, "slug", "", "unique project slug (required)")
	projectAddCmd.Flags().StringVar(&projectName, "name", "", "display name (defaults to slug)")
	projectAddCmd.Flags().StringVar(&projectRepo, "repo", "", "local path of the project's git checkout, used for git pull (required)")
	projectAddCmd.Flags().StringVar(&projectBaseBranch, "base-branch", "main", "branch PRs target")
	projectAddCmd.Flags().StringVar(&projectDeployBranch, "deploy-branch", "", "branch that triggers a deploy notification, empty to disable")
	projectAddCmd.Flags().StringVar(&projectProvider, "provider", "github", "tracker provider: github or gitlab")
	_ = projectAddCmd.MarkFlagRequired("slug")
	_ = projectAddCmd.MarkFlagRequired("repo")

	projectCmd.AddCommand(projectAddCmd, projectListCmd)
	rootCmd.AddCommand(projectCmd)
}

func runProjectAdd(cmd *cobra.Command, _ []string) error {
	name := projectName
	if name == "" {
		name = projectSlug
	}

	existing, err := registry.ReadProjects(workspaceFlag)
	if err != nil {
		return fmt.Errorf("reading registry: %w", err)
	}

	project := &registry.Project{
		Slug:         projectSlug,
		Name:         name,
		Repo:         projectRepo,
		BaseBranch:   projectBaseBranch,
		DeployBranch: projectDeployBranch,
		Provider:     projectProvider,
		Workers:      map[string]registry.RoleWorker{},
	}
	if prior, ok := existing[projectSlug]; ok {
		project.Workers = prior.Workers
		project.Channels = prior.Channels
	}

	if err := registry.PutProject(workspaceFlag, project); err != nil {
		return fmt.Errorf("writing project: %w", err)
	}

	fmt.Printf("registered project %q (%s)\n", project.Slug, project.Repo)
	return nil
}

func runProjectList(cmd *cobra.Command, _ []string) error {
	projects, err := registry.ReadProjects(workspaceFlag)
	if err != nil {
		return fmt.Errorf("reading registry: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(projects)
}
