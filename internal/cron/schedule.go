package cron

import "time"

// CronSchedule is a wall-clock trigger that injects catalog task
// descriptions into a project's cron-owned queue (spec.md §3).
type CronSchedule struct {
	ID          string
	Pattern     string
	TaskNames   []string
	ProjectDir  string
	ProjectName string
	LastRun     *time.Time
	NextRun     time.Time
	Enabled     bool
}

// QueueName is the dedicated cron-owned queue a schedule's fired tasks
// land in (spec.md §4.5: "a dedicated cron-owned queue for the target
// project").
func QueueName(projectName string) string {
	return "cron:" + projectName
}
