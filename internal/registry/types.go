// Package registry implements the persistent project registry (spec §3.2,
// §4.2): the mapping from project slug to configuration, worker slots, and
// channel bindings, plus the atomic worker-state store that backs it.
package registry

import "time"

// ChannelBinding names one chat channel an issue's notifications may route
// to. channels[0] is always the primary.
type ChannelBinding struct {
	ChannelID string   `json:"channelId"`
	Channel   string   `json:"channel"` // kind tag, e.g. "slack-channel", "telegram-group"
	Name      string   `json:"name"`
	AccountID string   `json:"accountId,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// Slot is one worker position at (project, role, level, index).
type Slot struct {
	Active        bool       `json:"active"`
	IssueID       string     `json:"issueId,omitempty"`
	SessionKey    string     `json:"sessionKey,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	PreviousLabel string     `json:"previousLabel,omitempty"`
}

// RoleWorker maps a competence level to its ordered slots.
type RoleWorker map[string][]Slot

// Project is one tracked repository/workspace.
type Project struct {
	Slug         string                `json:"slug"`
	Name         string                `json:"name"`
	Repo         string                `json:"repo"`
	BaseBranch   string                `json:"baseBranch"`
	DeployBranch string                `json:"deployBranch"`
	Provider     string                `json:"provider"` // "github" | "gitlab"
	Channels     []ChannelBinding      `json:"channels"`
	Workers      map[string]RoleWorker `json:"workers"`
}

// workerStateFile is the on-disk shape of the worker-state store (spec §6.6).
type workerStateFile struct {
	Projects map[string]*Project `json:"projects"`
}
