// Package heartbeat implements the periodic tick loop (spec §4.7, C7) that
// drives health reconciliation, PR review polling, and queue pickup across
// every registered project.
package heartbeat

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/taskctl/internal/config"
	"github.com/flowforge/taskctl/internal/health"
	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/notify"
	"github.com/flowforge/taskctl/internal/registry"
	"github.com/flowforge/taskctl/internal/sessions"
	"github.com/flowforge/taskctl/internal/telemetry"
	"github.com/flowforge/taskctl/internal/tracker"
)

// workspaceConfigName and projectConfigName name the two config layers a
// tick resolves per project (spec §4.9): a workspace-wide file and a
// per-project override file under projects/<slug>/.
const (
	workspaceConfigName = "config.yaml"
	projectConfigName   = "config.yaml"
)

func workspaceConfigPath(workspace string) string {
	return filepath.Join(workspace, workspaceConfigName)
}

func projectConfigPath(workspace, slug string) string {
	return filepath.Join(workspace, "projects", slug, projectConfigName)
}

// AuditRecorder matches dispatch.AuditRecorder structurally so the engine
// can hand the same sink to both the dispatch pipeline and its own
// heartbeat_tick record.
type AuditRecorder interface {
	Record(ctx context.Context, kind string, fields map[string]interface{})
}

// Deps bundles the engine's collaborators. A fresh config.ResolvedConfig is
// produced per project per tick; Deps carries only the things that don't
// vary per project.
type Deps struct {
	Workspace    string
	Tracker      tracker.Provider
	Sessions     sessions.Registry
	Notifier     notify.Notifier
	Audit        AuditRecorder
	Telemetry    *telemetry.Provider
	RolePrompts  map[string]string
	AutoFixHealth bool
	GitPuller    GitPuller
}

// Engine runs the heartbeat loop described by spec §4.7. Exactly one tick
// runs at a time; Stop lets an in-flight tick finish before returning.
type Engine struct {
	deps Deps

	tickMu sync.Mutex
	seq    int64

	stop    chan struct{}
	stopped chan struct{}
}

// NewEngine constructs an Engine ready to Run.
func NewEngine(deps Deps) *Engine {
	if deps.GitPuller == nil {
		deps.GitPuller = RealGitPuller{}
	}
	return &Engine{
		deps:    deps,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run blocks, firing an initial tick after kickoff and then one every
// interval, until Stop is called or ctx is cancelled. The interval and
// kickoff delay are read from the workspace-level config at startup and
// are not re-read mid-run; per-tick behavior still reloads config fresh
// (spec §4.7: "reloads config each tick").
func (e *Engine) Run(ctx context.Context) {
	defer close(e.stopped)

	cfg, err := config.Resolve(workspaceConfigPath(e.deps.Workspace), "")
	if err != nil {
		log.Error(log.CatHeartbeat, "failed to resolve startup config, using defaults", "error", err)
		cfg.Heartbeat = config.Default().Heartbeat
	}

	interval := time.Duration(cfg.Heartbeat.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	kickoff := time.Duration(cfg.Heartbeat.KickoffSeconds) * time.Second

	kickoffTimer := time.NewTimer(kickoff)
	defer kickoffTimer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-e.stop:
		return
	case <-kickoffTimer.C:
		e.runTick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.runTick(ctx)
		}
	}
}

// Stop signals the loop to stop after any in-flight tick finishes, and
// blocks until it has.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.stopped
}

func (e *Engine) runTick(ctx context.Context) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.seq++

	if _, err := e.Tick(ctx); err != nil {
		log.Error(log.CatHeartbeat, "heartbeat tick failed", "seq", e.seq, "error", err)
	}
}

// TickResult aggregates one tick's counters for the heartbeat_tick audit
// record.
type TickResult struct {
	Seq              int64
	ProjectsTicked   int
	ProjectsSkipped  int
	AnomaliesFound   int
	AnomaliesFixed   int
	ReviewsAdvanced  int
	Dispatched       int
	OrphanSessionsGC int
}

// Tick runs one full pass: liveKeys snapshot, per-project health/review/
// pickup, then the global orphaned-session scan (spec §4.7 steps 1-4).
// Exported so tests and the "taskctl dispatch" command can drive a single
// tick deterministically.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	seq := e.seq
	if seq == 0 {
		seq = 1
	}
	tickCtx := ctx
	if e.deps.Telemetry != nil {
		var end func()
		tickCtx, end = e.startTickSpan(ctx, seq)
		defer end()
	}

	result := TickResult{Seq: seq}

	projects, err := registry.ReadProjects(e.deps.Workspace)
	if err != nil {
		return result, err
	}

	liveKeys, known, err := e.deps.Sessions.ListLiveSessionKeys(tickCtx)
	if err != nil {
		log.Warn(log.CatHeartbeat, "listLiveSessionKeys failed, session-based checks suppressed this tick", "error", err)
	}

	slugs := make([]string, 0, len(projects))
	for slug := range projects {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	anyActiveWorkSoFar := false
	budget := e.resolveMaxPickups(tickCtx, projects, slugs)

	for _, slug := range slugs {
		project := projects[slug]

		resolvedCfg, err := config.Resolve(workspaceConfigPath(e.deps.Workspace), projectConfigPath(e.deps.Workspace, slug))
		if err != nil {
			log.Error(log.CatHeartbeat, "failed to resolve project config, skipping project this tick", "project", slug, "error", err)
			result.ProjectsSkipped++
			continue
		}

		hasActive := projectHasActiveWork(project)
		if resolvedCfg.Heartbeat.ProjectExecution == config.ExecutionSequential && !hasActive && anyActiveWorkSoFar {
			log.Debug(log.CatHeartbeat, "skipping project, sequential execution and another project already active", "project", slug)
			result.ProjectsSkipped++
			continue
		}

		pr := e.tickProject(tickCtx, project, resolvedCfg, liveKeys, known, budget-result.Dispatched)
		result.ProjectsTicked++
		result.AnomaliesFound += pr.anomaliesFound
		result.AnomaliesFixed += pr.anomaliesFixed
		result.ReviewsAdvanced += pr.reviewsAdvanced
		result.Dispatched += pr.dispatched

		if hasActive || pr.dispatched > 0 {
			anyActiveWorkSoFar = true
		}
	}

	if known {
		gcCount, err := health.ScanOrphanedSessions(tickCtx, e.deps.Sessions, projects)
		if err != nil {
			log.Warn(log.CatHeartbeat, "orphaned session scan failed", "error", err)
		}
		result.OrphanSessionsGC = gcCount
	}

	e.deps.Audit.Record(ctx, "heartbeat_tick", map[string]interface{}{
		"seq":              result.Seq,
		"projectsTicked":   result.ProjectsTicked,
		"projectsSkipped":  result.ProjectsSkipped,
		"anomaliesFound":   result.AnomaliesFound,
		"anomaliesFixed":   result.AnomaliesFixed,
		"reviewsAdvanced":  result.ReviewsAdvanced,
		"dispatched":       result.Dispatched,
		"orphanSessionsGC": result.OrphanSessionsGC,
	})

	return result, nil
}

// resolveMaxPickups reads maxPickupsPerTick from the first project's
// resolved config (or the workspace default if there are no projects yet),
// since the budget is a tick-wide bound rather than per-project (spec
// §4.7 step 4, §5 "Fairness").
func (e *Engine) resolveMaxPickups(ctx context.Context, projects map[string]*registry.Project, slugs []string) int {
	var path string
	if len(slugs) > 0 {
		path = projectConfigPath(e.deps.Workspace, slugs[0])
	}
	cfg, err := config.Resolve(workspaceConfigPath(e.deps.Workspace), path)
	if err != nil || cfg.Heartbeat.MaxPickupsPerTick <= 0 {
		return config.Default().Heartbeat.MaxPickupsPerTick
	}
	return cfg.Heartbeat.MaxPickupsPerTick
}

func (e *Engine) startTickSpan(ctx context.Context, seq int64) (context.Context, func()) {
	spanCtx, span := e.deps.Telemetry.StartTickSpan(ctx, seq)
	return spanCtx, func() {
		telemetry.SetOK(span)
		span.End()
	}
}

// projectHasActiveWork reports whether any slot in any role/level is
// currently active.
func projectHasActiveWork(project *registry.Project) bool {
	for _, rw := range project.Workers {
		for _, slots := range rw {
			for _, s := range slots {
				if s.Active {
					return true
				}
			}
		}
	}
	return false
}
