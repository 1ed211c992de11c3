package pkg

import (
	"go.uber.org/zap"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/retry"
)

// EventLog writes the event stream as structured log lines
type EventLog struct {
	log *zap.SugaredLogger
}

var _ clustermanager.EventService = &EventLog{}

// NewEventLog creates an EventLog
func NewEventLog(log *zap.SugaredLogger) *EventLog {
	return &EventLog{log: log}
}

// AddEvent implements clustermanager.EventService
func (eventLog *EventLog) AddEvent(event clustermanager.Event) {
	fields := []interface{}{"type", string(event.Type), "phase", event.Phase}
	if event.Node != "" {
		fields = append(fields, "node", event.Node)
	}

	switch event.Type {
	case clustermanager.EventPhaseFailed:
		if failure, ok := retry.AsFailure(event.Err); ok {
			fields = append(fields, "category", string(failure.Category), "attempts", failure.Attempts, "remediation", failure.Remediation)
		}
		eventLog.log.Errorw(event.Message, append(fields, zap.Error(event.Err))...)
	case clustermanager.EventPhaseSkipped, clustermanager.EventPhaseCancelled, clustermanager.EventRollback:
		if event.Err != nil {
			fields = append(fields, zap.Error(event.Err))
		}
		eventLog.log.Warnw(event.Message, fields...)
	case clustermanager.EventStep:
		eventLog.log.Debugw(event.Message, fields...)
	default:
		eventLog.log.Infow(event.Message, fields...)
	}
}
