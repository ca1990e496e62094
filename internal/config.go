package internal

import (
	"fmt"
	"strings"
	"time"

	"file-renamer/domain"
	"file-renamer/transfer"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

type Config struct {
	MaxFileSize     int64         `env:"MAX_FILE_SIZE,default=4294967296" validate:"gt=0"`
	HourlyFileLimit int           `env:"HOURLY_FILE_LIMIT,default=20" validate:"gte=1"`
	RateWindow      time.Duration `env:"RATE_WINDOW,default=1h" validate:"gt=0"`
	DownloadSlots   int           `env:"DOWNLOAD_SLOTS,default=3" validate:"gte=1"`
	UploadSlots     int           `env:"UPLOAD_SLOTS,default=3" validate:"gte=1"`

	FilenameMaxLength   int    `env:"FILENAME_MAX_LENGTH,default=100" validate:"gte=1,lte=255"`
	SupportedExtensions string `env:"SUPPORTED_EXTENSIONS"`

	ProgressMinInterval       time.Duration `env:"PROGRESS_MIN_INTERVAL,default=5s"`
	ProgressMinPercent        float64       `env:"PROGRESS_MIN_PERCENT,default=5" validate:"gte=0,lte=100"`
	ProgressCompletionPercent float64       `env:"PROGRESS_COMPLETION_PERCENT,default=100" validate:"gt=0,lte=100"`
	MessageMinInterval        time.Duration `env:"MESSAGE_MIN_INTERVAL,default=2s"`

	AwaitFilenameTimeout time.Duration `env:"AWAIT_FILENAME_TIMEOUT,default=300s" validate:"gt=0"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL,default=30s" validate:"gt=0"`

	LogChannel      int64  `env:"LOG_CHANNEL,default=0"`
	ThumbnailSize   int    `env:"THUMBNAIL_SIZE,default=320" validate:"gte=16"`
	ThumbnailWorker int    `env:"THUMBNAIL_WORKERS,default=2" validate:"gte=1"`
	CustomThumbnail string `env:"CUSTOM_THUMBNAIL"`

	DownloadDir    string        `env:"DOWNLOAD_DIR,default=downloads" validate:"required"`
	OutboxDir      string        `env:"OUTBOX_DIR,default=outbox" validate:"required"`
	MaxUploadSize  int64         `env:"MAX_UPLOAD_SIZE,default=4294967296" validate:"gt=0"`
	EditInterval   time.Duration `env:"EDIT_INTERVAL,default=1s"`
	ChunkSize      int           `env:"CHUNK_SIZE,default=524288" validate:"gte=1024"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,default=data/activity" validate:"required"`
	ActivityTTL    time.Duration `env:"ACTIVITY_TTL,default=720h"`

	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	MetricsAddr     string        `env:"METRICS_ADDR"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL,default=30s" validate:"gt=0"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,default=5s" validate:"gt=0"`
	InboundWorkers  int           `env:"INBOUND_WORKERS,default=8" validate:"gte=1"`
	BufferSize      int           `env:"BUFFER_SIZE,default=64" validate:"gte=1"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
}

// Validate checks ranges that env tags cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c Config) ThrottlePolicy() transfer.Policy {
	return transfer.Policy{
		MinInterval:       c.ProgressMinInterval,
		MinPercentDelta:   c.ProgressMinPercent,
		CompletionPercent: c.ProgressCompletionPercent,
	}
}

// SupportedExtensionList parses SUPPORTED_EXTENSIONS ("pdf, .MP4,zip") into
// lower-case extensions with a leading dot. Empty means every format is accepted.
func (c Config) SupportedExtensionList() []string {
	return ParseList(c.SupportedExtensions, func(s string) string {
		s = strings.ToLower(s)
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		return s
	})
}

func (c Config) LogChannelID() (domain.ChatID, bool) {
	return domain.ChatID(c.LogChannel), c.LogChannel != 0
}

func ParseList(raw string, normalize func(string) string) []string {
	items := lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	items = lo.Filter(items, func(s string, _ int) bool { return s != "" })
	return lo.Uniq(lo.Map(items, func(s string, _ int) string { return normalize(s) }))
}
