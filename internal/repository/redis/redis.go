// Package redis stores queue state under a single key and tracks per-file
// progress of running jobs in one hash per job.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"docbatch/internal/batch"
	"docbatch/internal/queue"
)

// DefaultStateKey holds the exported queue when no key is configured.
const DefaultStateKey = "batch:state"

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects and pings the server.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

type StateStore struct {
	client *redis.Client
	key    string
}

func NewStateStore(client *redis.Client, key string) *StateStore {
	if key == "" {
		key = DefaultStateKey
	}
	return &StateStore{client: client, key: key}
}

func (s *StateStore) Load(ctx context.Context) (queue.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return queue.State{}, nil
	}
	if err != nil {
		return queue.State{}, err
	}
	var state queue.State
	if err := json.Unmarshal(data, &state); err != nil {
		return queue.State{}, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return state, nil
}

func (s *StateStore) Save(ctx context.Context, state queue.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// FileProgress is the tracked state of one file.
type FileProgress struct {
	Status  batch.FileStatus `json:"status"`
	Percent int              `json:"percent"`
	Error   string           `json:"error,omitempty"`
}

// ProgressTracker is a batch.Sink that mirrors file events into the hash
// batch:job:<id>:files, keyed by file id.
type ProgressTracker struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewProgressTracker(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *ProgressTracker {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &ProgressTracker{client: client, ttl: ttl, timeout: 2 * time.Second, log: log}
}

func FilesKey(jobID string) string {
	return fmt.Sprintf("batch:job:%s:files", jobID)
}

func (t *ProgressTracker) Emit(ev batch.Event) {
	p := FileProgress{Percent: ev.Percent}
	switch ev.Kind {
	case batch.EventFileStarted, batch.EventFileProgress:
		p.Status = batch.FileProcessing
	case batch.EventFileCompleted:
		p.Status = batch.FileCompleted
		p.Percent = 100
	case batch.EventFileFailed:
		p.Status = batch.FileFailed
		p.Error = ev.Err
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.set(ctx, ev.JobID, ev.FileID, p); err != nil {
		t.log.WithFields(logrus.Fields{"job_id": ev.JobID, "file_id": ev.FileID, "error": err}).Warn("track progress")
	}
}

func (t *ProgressTracker) set(ctx context.Context, jobID, fileID string, p FileProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := FilesKey(jobID)
	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, key, fileID, data)
	if t.ttl > 0 {
		pipe.Expire(ctx, key, t.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Files returns the tracked files of a job by file id.
func (t *ProgressTracker) Files(ctx context.Context, jobID string) (map[string]FileProgress, error) {
	raw, err := t.client.HGetAll(ctx, FilesKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]FileProgress, len(raw))
	for id, v := range raw {
		var p FileProgress
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("file %s: %w", id, err)
		}
		out[id] = p
	}
	return out, nil
}

// Completed counts finished and total tracked files of a job.
func (t *ProgressTracker) Completed(ctx context.Context, jobID string) (done, total int, err error) {
	files, err := t.Files(ctx, jobID)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range files {
		if p.Status.Terminal() {
			done++
		}
	}
	return done, len(files), nil
}

func (t *ProgressTracker) Forget(ctx context.Context, jobID string) error {
	return t.client.Del(ctx, FilesKey(jobID)).Err()
}
