package activity

import (
	"context"
	"log/slog"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/observability"
)

var (
	_ contract.ActivityRecorder = (*Logger)(nil)
	_ contract.Worker           = (*Logger)(nil)
	_ contract.Flusher          = (*Logger)(nil)
)

type namedSink struct {
	name string
	sink contract.ActivitySink
}

// Logger broadcasts activity records to its sinks.
//
// Record never blocks: records are queued and fanned out by Run, each sink
// under its own timeout. A failing or slow sink is logged and otherwise ignored,
// it can never fail a pipeline run.
type Logger struct {
	log         *slog.Logger
	records     chan domain.ActivityRecord
	sinks       []namedSink
	sinkTimeout time.Duration
	metrics     *observability.Metrics
}

func NewLogger(log *slog.Logger, bufferSize int, sinkTimeout time.Duration, metrics *observability.Metrics) *Logger {
	return &Logger{
		log:         log,
		records:     make(chan domain.ActivityRecord, bufferSize),
		sinkTimeout: sinkTimeout,
		metrics:     metrics,
	}
}

func (l *Logger) Add(name string, sink contract.ActivitySink) *Logger {
	l.sinks = append(l.sinks, namedSink{name: name, sink: sink})
	return l
}

func (l *Logger) Record(_ context.Context, record domain.ActivityRecord) {
	select {
	case l.records <- record:
	default:
		l.log.Warn("Activity record lost, buffer full", "user_id", record.UserID, "kind", record.Kind)
	}
}

func (l *Logger) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Flush()
			l.log.Debug("Context done, stopping activity fanout")
			return nil
		case record := <-l.records:
			l.Fanout(ctx, record)
		}
	}
}

// Fanout delivers one record to every sink concurrently and waits for all of them.
func (l *Logger) Fanout(ctx context.Context, record domain.ActivityRecord) {
	done := make(chan struct{}, len(l.sinks))
	for _, s := range l.sinks {
		go func(s namedSink) {
			defer func() {
				if r := recover(); r != nil {
					l.failed(s.name, record, "panic")
				}
				done <- struct{}{}
			}()
			sinkCtx, cancel := context.WithTimeout(ctx, l.sinkTimeout)
			defer cancel()
			if err := s.sink.Consume(sinkCtx, record); err != nil {
				l.failed(s.name, record, err.Error())
			}
		}(s)
	}
	for range l.sinks {
		<-done
	}
}

// Flush delivers what is still queued with a fresh context.
// Records made after Run stopped stay queued until the next Flush.
func (l *Logger) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), l.sinkTimeout)
	defer cancel()
	for {
		select {
		case record := <-l.records:
			l.Fanout(ctx, record)
		default:
			return
		}
	}
}

func (l *Logger) failed(name string, record domain.ActivityRecord, reason string) {
	l.log.Warn("Activity sink failed", "sink", name, "user_id", record.UserID, "error", reason)
	if l.metrics != nil {
		l.metrics.SinkFailures.WithLabelValues(name).Inc()
	}
}
