package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docbatch/internal/batch"
	"docbatch/internal/config"
	"docbatch/internal/executor"
	"docbatch/internal/logging"
	"docbatch/internal/ocr"
	"docbatch/internal/pdf/pdfcpu"
	"docbatch/internal/queue"
	"docbatch/internal/repository/file"
	"docbatch/internal/repository/mysql"
	"docbatch/internal/repository/psql"
	"docbatch/internal/repository/rabbitmq"
	redisrepo "docbatch/internal/repository/redis"
	"docbatch/internal/runner"
	"docbatch/internal/storage"
)

// app holds what every command shares: settings, a logger, the state store
// and the queue restored from it.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   queue.Store
	queue   *queue.Queue
	rdb     *redis.Client
	closers []func() error
}

// loadConfig reads the environment, then applies the persistent flags that
// were set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("state") {
		cfg.State.Backend = stateBackend
	}
	if flags.Changed("state-file") {
		cfg.State.File = stateFile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads settings and the saved queue. logOut receives log output;
// nil means stderr.
func openApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	a := &app{cfg: cfg}

	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f.Close)
		logOut = f
	}
	a.log, err = logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		a.close()
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}

	state, err := a.store.Load(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	a.queue = queue.New()
	a.queue.ImportState(state)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.State.Backend {
	case config.BackendFile:
		a.store = file.New(a.cfg.State.File)
	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		a.store = redisrepo.NewStateStore(client, a.cfg.Redis.StateKey)
	case config.BackendPostgres:
		db, err := psql.Open(a.cfg.State.PostgresDSN)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		a.store = psql.NewStateStore(db)
	case config.BackendMySQL:
		db, err := mysql.Open(ctx, a.cfg.State.MySQLDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.store = mysql.NewStateStore(db)
	default:
		return fmt.Errorf("unknown state backend %q", a.cfg.State.Backend)
	}
	a.log.WithField("backend", a.cfg.State.Backend).Debug("state store ready")
	return nil
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	client, err := redisrepo.NewClient(ctx, redisrepo.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.rdb = client
	return client, nil
}

func (a *app) save(ctx context.Context) error {
	if err := a.store.Save(ctx, a.queue.ExportState()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.WithError(err).Warn("close")
		}
	}
	a.closers = nil
}

// files returns the storage backend jobs read from and write to.
func (a *app) files() (executor.FileAccess, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageS3:
		return storage.NewS3(storage.S3Config{
			Endpoint:     a.cfg.Storage.Endpoint,
			AccessKey:    a.cfg.Storage.AccessKey,
			SecretKey:    a.cfg.Storage.SecretKey,
			Bucket:       a.cfg.Storage.Bucket,
			UseSSL:       a.cfg.Storage.UseSSL,
			OutputPrefix: a.cfg.Storage.OutputDir,
		})
	default:
		return storage.NewLocal(a.cfg.Storage.OutputDir), nil
	}
}

// tracker returns the redis progress tracker, or nil when it is disabled.
func (a *app) tracker(ctx context.Context) (*redisrepo.ProgressTracker, error) {
	if !a.cfg.Redis.Progress {
		return nil, nil
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	return redisrepo.NewProgressTracker(client, a.cfg.Redis.ProgressTTL, a.log), nil
}

// forgetRemoved drops tracked progress of the jobs in before that are no
// longer queued.
func (a *app) forgetRemoved(ctx context.Context, before []string) {
	tracker, err := a.tracker(ctx)
	if err != nil {
		a.log.WithError(err).Warn("progress tracker")
		return
	}
	if tracker == nil {
		return
	}
	for _, id := range before {
		if _, ok := a.queue.GetJob(id); ok {
			continue
		}
		if err := tracker.Forget(ctx, id); err != nil {
			a.log.WithFields(logrus.Fields{"job_id": id, "error": err}).Warn("forget progress")
		}
	}
}

func (a *app) templates() *file.Templates {
	return file.NewTemplates(a.cfg.State.TemplateFile)
}

// newRunner wires executors, storage and the optional event outlets.
func (a *app) newRunner(ctx context.Context, drain bool, extra ...runner.Option) (*runner.Runner, error) {
	files, err := a.files()
	if err != nil {
		return nil, err
	}
	env := executor.Env{
		Files:     files,
		Documents: pdfcpu.New(),
	}
	tess := &ocr.Tesseract{Binary: a.cfg.Tesseract}
	if tess.Available() {
		env.Recognizer = tess
	} else {
		a.log.WithField("binary", a.cfg.Tesseract).Warn("tesseract not found, ocr jobs will fail")
	}

	opts := []runner.Option{
		runner.WithStore(a.store),
		runner.WithLogger(a.log),
		runner.WithOptions(runner.Options{Workers: a.cfg.Workers, Drain: drain}),
	}

	tracker, err := a.tracker(ctx)
	if err != nil {
		return nil, err
	}
	if tracker != nil {
		opts = append(opts, runner.WithSink(tracker))
	}
	if a.cfg.Rabbit.URL != "" {
		conn, err := rabbitmq.Dial(a.cfg.Rabbit.URL)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		pub, err := rabbitmq.NewPublisher(conn, a.cfg.Rabbit.Exchange, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, runner.WithSink(pub), runner.WithObserver(pub))
	}

	opts = append(opts, extra...)
	return runner.New(a.queue, executor.Default(), env, opts...), nil
}

// findJob resolves a full id or a unique id prefix.
func (a *app) findJob(ref string) (*batch.BatchJob, error) {
	if job, ok := a.queue.GetJob(ref); ok {
		return job, nil
	}
	var match *batch.BatchJob
	for _, job := range a.queue.Jobs() {
		if len(ref) >= 4 && len(job.ID) >= len(ref) && job.ID[:len(ref)] == ref {
			if match != nil {
				return nil, fmt.Errorf("job id %q is ambiguous", ref)
			}
			match = job
		}
	}
	if match == nil {
		return nil, fmt.Errorf("job %q: %w", ref, errJobNotFound)
	}
	return match, nil
}

var errJobNotFound = errors.New("not found")
