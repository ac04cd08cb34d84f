package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/football-dw/warehouse/pkg/checkpoint"
	"github.com/football-dw/warehouse/pkg/config"
	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/executor"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GlobalFlags are shared by every command. The database flags read the same environment variables the
// CSV loader uses.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "show debug information",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "the path of the configuration file",
			Value:   config.DefaultFile,
		},
		&cli.BoolFlag{
			Name:  "no-log-file",
			Usage: "only log to the console",
		},
		&cli.StringFlag{
			Name:    "db-host",
			Usage:   "database host",
			EnvVars: []string{"DB_HOST"},
		},
		&cli.IntFlag{
			Name:    "db-port",
			Usage:   "database port",
			EnvVars: []string{"DB_PORT"},
		},
		&cli.StringFlag{
			Name:    "db-name",
			Usage:   "database name",
			EnvVars: []string{"DB_NAME"},
		},
		&cli.StringFlag{
			Name:    "db-user",
			Usage:   "database user",
			EnvVars: []string{"DB_USER"},
		},
		&cli.StringFlag{
			Name:    "db-password",
			Usage:   "database password",
			EnvVars: []string{"DB_PASSWORD"},
		},
	}
}

func RecoverFromPanic() {
	if err := recover(); err != nil {
		log.Println("=======================================")
		log.Println("The pipeline encountered an unexpected error.")
		log.Println(err)
		log.Println("=======================================")
		b := bufio.NewScanner(bytes.NewBuffer(debug.Stack()))
		for b.Scan() {
			log.Println(b.Text())
		}
		os.Exit(exitCritical)
	}
}

func NewRunID() string {
	if id := os.Getenv("ETL_RUN_ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

func makeLogger(isDebug bool, file io.Writer) *zap.SugaredLogger {
	level := zap.InfoLevel
	if isDebug {
		level = zap.DebugLevel
	}

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stdout), level),
	}

	if file != nil {
		fileConfig := zap.NewDevelopmentEncoderConfig()
		fileConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(fileConfig), zapcore.AddSync(file), level))
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar()
}

func logFileName(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("etl_auto_%s.log", now.Format("20060102_150405")))
}

func openLogFile(fs afero.Fs, dir string, now time.Time) (afero.File, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}

	f, err := fs.OpenFile(logFileName(dir, now), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open log file")
	}
	return f, nil
}

// loadConfig reads the configuration file, if any, and applies the database flags over it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(fs, c.String("config"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load the configuration from %s", c.String("config"))
	}

	if c.IsSet("db-host") {
		cfg.Database.Host = c.String("db-host")
	}
	if c.IsSet("db-port") {
		cfg.Database.Port = c.Int("db-port")
	}
	if c.IsSet("db-name") {
		cfg.Database.Name = c.String("db-name")
	}
	if c.IsSet("db-user") {
		cfg.Database.User = c.String("db-user")
	}
	if c.IsSet("db-password") {
		cfg.Database.Password = c.String("db-password")
	}

	return cfg, nil
}

// environment holds everything a command needs to talk to the warehouse.
type environment struct {
	config  *config.Config
	catalog dw.Catalog
	db      *postgres.Client
	logger  *zap.SugaredLogger
	closers []func()
}

// setup failures are critical: nothing in here needs the database to be reachable.
func setup(c *cli.Context) (*environment, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		errorPrinter.Printf("%v\n", err)
		return nil, cli.Exit("", exitCritical)
	}

	env := &environment{config: cfg}

	var file io.Writer
	if !c.Bool("no-log-file") {
		f, err := openLogFile(fs, cfg.Pipeline.LogsDir, time.Now())
		if err != nil {
			errorPrinter.Printf("%v\n", err)
			return nil, cli.Exit("", exitCritical)
		}
		file = f
		env.closers = append(env.closers, func() { _ = f.Close() })
	}
	env.logger = makeLogger(c.Bool("debug"), file)
	env.closers = append(env.closers, func() { _ = env.logger.Sync() })

	opts, err := cfg.CatalogOptions()
	if err != nil {
		env.close()
		errorPrinter.Printf("Invalid configuration: %v\n", err)
		return nil, cli.Exit("", exitCritical)
	}
	env.catalog = dw.NewCatalog(opts)
	if err := env.catalog.Validate(); err != nil {
		env.close()
		errorPrinter.Printf("Invalid warehouse catalog: %v\n", err)
		return nil, cli.Exit("", exitCritical)
	}

	pg := cfg.Database.ToPostgres()
	env.db, err = postgres.NewClient(c.Context, pg)
	if err != nil {
		env.close()
		errorPrinter.Printf("Invalid database settings for %s: %v\n", pg, err)
		return nil, cli.Exit("", exitCritical)
	}
	env.closers = append(env.closers, env.db.Close)
	env.logger.Debugf("using database %s, warehouse schema %s", pg, cfg.WarehouseSchema)

	return env, nil
}

func (e *environment) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *environment) checkpoints() *checkpoint.FileStore {
	return checkpoint.NewFileStore(fs, e.config.Pipeline.CheckpointFile)
}

// standaloneCheckpoints opens the checkpoint store for a single phase. A finished run is cleared first, so
// the next pipeline run resumes after this phase.
func (e *environment) standaloneCheckpoints() (*checkpoint.FileStore, error) {
	store := e.checkpoints()
	reopened, err := store.ReopenFinished()
	if err != nil {
		errorPrinter.Printf("Failed to prepare the checkpoint file: %v\n", err)
		return nil, cli.Exit("", exitPhaseFailure)
	}
	if reopened {
		e.logger.Debugf("cleared checkpoints of the finished run in %s", store.Path())
	}
	return store, nil
}

func (e *environment) runner(checkpoints executor.CheckpointSaver, runID string) *executor.Sequential {
	return executor.NewSequential(executor.Config{
		MaxAttempts: e.config.Pipeline.MaxRetries,
		RetryDelay:  e.config.Pipeline.RetryDelay,
	}, checkpoints, e.logger, os.Stdout, runID)
}

// probe checks connectivity before a standalone command touches the warehouse.
func (e *environment) probe(c *cli.Context) error {
	version, err := e.db.ServerVersion(c.Context)
	if err != nil {
		errorPrinter.Printf("Failed to connect to the database: %v\n", err)
		return cli.Exit("", exitPhaseFailure)
	}
	e.logger.Debugf("connected to %s", version)
	return nil
}
