package eventbus

import "encoding/json"

// QueueProgressEvent is published on SubjectQueueProgress whenever the
// Task Queue Manager reports a line of progress.
type QueueProgressEvent struct {
	Queue string `json:"queue"`
	Line  string `json:"line"`
}

// QueueReporter adapts a Bus into queue.ProgressReporter (defined
// structurally here to avoid an import cycle; internal/queue only
// needs the Report(queue, line string) method set).
type QueueReporter struct {
	bus Bus
}

// NewQueueReporter wraps a Bus so Task Queue Manager progress lines
// are also published for any ambient subscriber (e.g. a metrics or
// audit consumer) in addition to being forwarded to chat directly by
// the caller that owns that concern.
func NewQueueReporter(bus Bus) *QueueReporter {
	return &QueueReporter{bus: bus}
}

// Report publishes a queue progress line.
func (r *QueueReporter) Report(queueName, line string) {
	data, err := json.Marshal(QueueProgressEvent{Queue: queueName, Line: line})
	if err != nil {
		return
	}
	_ = r.bus.Publish(SubjectQueueProgress, data)
}

// ScheduleFiredEvent is published on SubjectScheduleFired whenever the
// Cron Scheduler fires a schedule.
type ScheduleFiredEvent struct {
	ScheduleID string `json:"schedule_id"`
	Project    string `json:"project"`
}

// PublishScheduleFired is a small helper the Cron Scheduler's caller
// can invoke after Scheduler.Tick to notify ambient subscribers.
func PublishScheduleFired(bus Bus, scheduleID, project string) {
	data, err := json.Marshal(ScheduleFiredEvent{ScheduleID: scheduleID, Project: project})
	if err != nil {
		return
	}
	_ = bus.Publish(SubjectScheduleFired, data)
}
