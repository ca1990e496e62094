package transfer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"file-renamer/clock"
	"file-renamer/domain"
	"file-renamer/errors"
	"file-renamer/guard"
	"file-renamer/mocks"
	"file-renamer/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	status   = domain.MessageHandle{ChatID: 100, MessageID: 10}
	tStart   = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	throttle = Policy{MinInterval: 5 * time.Second, MinPercentDelta: 5, CompletionPercent: 100}
)

func reporterConfig(c *clock.Fake, messenger *mocks.MockMessenger, metrics *observability.Metrics) ReporterConfig {
	return ReporterConfig{
		Log:           slog.Default(),
		Clock:         c,
		Policy:        throttle,
		Guard:         guard.NewGuard(c),
		GuardInterval: 2 * time.Second,
		Messenger:     messenger,
		Metrics:       metrics,
	}
}

func TestReporter_AcceptedReportsAreSpaced(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	c := clock.NewFake(tStart)
	messenger := mocks.NewMockMessenger(ctrl)
	messenger.EXPECT().EditMessage(gomock.Any(), status, gomock.Any()).Return(nil).AnyTimes()

	total := int64(1000)
	r := NewReporter(context.Background(), reporterConfig(c, messenger, nil), domain.Download, 1, status, "a.bin", total)

	var accepted []domain.TransferJob
	prev := domain.TransferJob{}
	for current := int64(1); current <= total; current++ {
		c.Advance(100 * time.Millisecond)
		r.Observe(current, total)
		job := r.Job()
		if job.Reported && job.LastReportAt != prev.LastReportAt {
			accepted = append(accepted, job)
		}
		prev = job
	}
	r.Close()

	req.Greater(len(accepted), 2)
	req.InDelta(0.1, accepted[0].LastReportPercent, 0.001)
	last := accepted[len(accepted)-1]
	req.True(last.Terminal)
	req.Equal(100.0, last.LastReportPercent)
	for i := 1; i < len(accepted)-1; i++ {
		gap := accepted[i].LastReportAt.Sub(accepted[i-1].LastReportAt)
		req.GreaterOrEqual(gap, throttle.MinInterval)
		req.GreaterOrEqual(accepted[i].LastReportPercent-accepted[i-1].LastReportPercent, throttle.MinPercentDelta)
	}
}

func TestReporter_TransferredBytesNeverDecrease(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	c := clock.NewFake(tStart)
	messenger := mocks.NewMockMessenger(ctrl)
	messenger.EXPECT().EditMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	r := NewReporter(context.Background(), reporterConfig(c, messenger, nil), domain.Upload, 1, status, "a.bin", 100)
	r.Observe(60, 100)
	r.Observe(40, 100)
	r.Close()

	req.Equal(int64(60), r.Job().TransferredBytes)
}

func TestReporter_RateLimitedEditSleepsAndContinues(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	c := clock.NewFake(tStart)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	messenger := mocks.NewMockMessenger(ctrl)
	first := messenger.EXPECT().EditMessage(gomock.Any(), status, gomock.Any()).
		Return(&errors.RateLimitError{RetryAfter: 5 * time.Second})
	messenger.EXPECT().EditMessage(gomock.Any(), status, gomock.Any()).
		Return(nil).After(first).AnyTimes()

	r := NewReporter(context.Background(), reporterConfig(c, messenger, metrics), domain.Upload, 1, status, "a.bin", 100)
	r.Observe(10, 100)
	r.Close()

	req.Equal([]time.Duration{5 * time.Second}, c.Waits())
	req.Equal(1.0, testutil.ToFloat64(metrics.FloodWaits))
}

func TestReporter_NoStatusMessageSkipsEdits(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := clock.NewFake(tStart)
	messenger := mocks.NewMockMessenger(ctrl)

	r := NewReporter(context.Background(), reporterConfig(c, messenger, nil), domain.Download, 1, domain.MessageHandle{}, "a.bin", 100)
	r.Observe(100, 100)
	r.Close()
}
