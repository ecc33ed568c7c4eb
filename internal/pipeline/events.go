package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kabelbinder-discount/PDM/internal/observability"
)

// Reporter receives streamed job progress. Events are emitted as they
// happen, never buffered until the end of a job.
type Reporter interface {
	// Progress reports the current row index against the total.
	Progress(current, total int)
	// Status streams a human-readable running status line.
	Status(message string)
	// Finished reports the final outcome with the processed record count.
	Finished(ok bool, message string, processed int)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) Progress(int, int)          {}
func (NopReporter) Status(string)              {}
func (NopReporter) Finished(bool, string, int) {}

// Combine fans events out to several reporters.
func Combine(reporters ...Reporter) Reporter {
	return multiReporter(reporters)
}

type multiReporter []Reporter

func (m multiReporter) Progress(current, total int) {
	for _, r := range m {
		r.Progress(current, total)
	}
}

func (m multiReporter) Status(message string) {
	for _, r := range m {
		r.Status(message)
	}
}

func (m multiReporter) Finished(ok bool, message string, processed int) {
	for _, r := range m {
		r.Finished(ok, message, processed)
	}
}

// LogReporter writes events to the structured log.
type LogReporter struct {
	Logger *observability.Logger
}

func (l LogReporter) Progress(current, total int) {
	l.Logger.Debug().Int("row", current).Int("total", total).Msg("progress")
}

func (l LogReporter) Status(message string) {
	l.Logger.Info().Msg(message)
}

func (l LogReporter) Finished(ok bool, message string, processed int) {
	evt := l.Logger.Info()
	if !ok {
		evt = l.Logger.Error()
	}
	evt.Bool("ok", ok).Int("processed", processed).Msg(message)
}

// Event is the wire form of a job event on the redis channel.
type Event struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"` // progress, status or done
	Message   string    `json:"message,omitempty"`
	Row       int       `json:"row,omitempty"`
	Total     int       `json:"total,omitempty"`
	OK        bool      `json:"ok,omitempty"`
	Processed int       `json:"processed,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// RedisPublisher publishes job events to a redis pub/sub channel so other
// processes can follow long-running imports. Publish failures are logged
// and never fail the job.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	jobID   string
	logger  *observability.Logger
}

// RedisOptions configures the publisher connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisPublisher connects a publisher for one job.
func NewRedisPublisher(opts RedisOptions, jobID string, logger *observability.Logger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisPublisher{
		client:  client,
		channel: opts.Channel,
		jobID:   jobID,
		logger:  logger,
	}
}

// Close releases the redis connection.
func (p *RedisPublisher) Close() error { return p.client.Close() }

func (p *RedisPublisher) Progress(current, total int) {
	p.publish(Event{Kind: "progress", Row: current, Total: total})
}

func (p *RedisPublisher) Status(message string) {
	p.publish(Event{Kind: "status", Message: message})
}

func (p *RedisPublisher) Finished(ok bool, message string, processed int) {
	p.publish(Event{Kind: "done", OK: ok, Message: message, Processed: processed})
}

func (p *RedisPublisher) publish(evt Event) {
	evt.JobID = p.jobID
	evt.Timestamp = time.Now()

	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Warn().Err(err).Msg("marshal job event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn().Err(err).Str("channel", p.channel).Msg("publish job event")
	}
}
