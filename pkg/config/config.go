package config

import (
	"bufio"
	"fmt"
	fs2 "io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/football-dw/warehouse/pkg/checkpoint"
	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/fact"
	path2 "github.com/football-dw/warehouse/pkg/path"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/football-dw/warehouse/pkg/quality"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	DefaultFile = "etl.yml"

	dateLayout = "2006-01-02"
)

type Database struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Name         string `yaml:"name"`
	User         string `yaml:"user"`
	Password     string `yaml:"password,omitempty"`
	SslMode      string `yaml:"ssl_mode,omitempty" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	PoolMaxConns int    `yaml:"pool_max_conns,omitempty" validate:"omitempty,min=2"`
}

func (d Database) ToPostgres() postgres.Config {
	return postgres.Config{
		Username:     d.User,
		Password:     d.Password,
		Host:         d.Host,
		Port:         d.Port,
		Database:     d.Name,
		PoolMaxConns: d.PoolMaxConns,
		SslMode:      d.SslMode,
	}
}

type Pipeline struct {
	MaxRetries     int           `yaml:"max_retries" validate:"omitempty,min=1,max=20"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	EnableSnapshot *bool         `yaml:"enable_snapshot,omitempty"`
	CheckpointFile string        `yaml:"checkpoint_file"`
	LogsDir        string        `yaml:"logs_dir"`
}

func (p Pipeline) SnapshotEnabled() bool {
	return p.EnableSnapshot == nil || *p.EnableSnapshot
}

type Quality struct {
	CoreTables []string `yaml:"core_tables"`
}

type DateDimension struct {
	Start string `yaml:"start" validate:"omitempty,datetime=2006-01-02"`
	End   string `yaml:"end" validate:"omitempty,datetime=2006-01-02"`
}

// Source describes one raw dataset loaded into the relational schema by the CSV loader.
type Source struct {
	File        string   `yaml:"file" validate:"required"`
	Table       string   `yaml:"table" validate:"required"`
	ChunkSize   int      `yaml:"chunk_size" validate:"omitempty,min=1"`
	DateColumns []string `yaml:"date_columns,omitempty"`
}

type Config struct {
	fs   afero.Fs
	path string

	Database        Database          `yaml:"database"`
	WarehouseSchema string            `yaml:"warehouse_schema"`
	Pipeline        Pipeline          `yaml:"pipeline"`
	Quality         Quality           `yaml:"quality"`
	DateDimension   DateDimension     `yaml:"date_dimension"`
	FactChunkSize   int               `yaml:"fact_chunk_size" validate:"omitempty,min=1"`
	Sources         map[string]Source `yaml:"sources" validate:"dive"`
}

func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Name == "" {
		c.Database.Name = "football_data_sa"
	}
	if c.Database.User == "" {
		c.Database.User = "football_admin"
	}
	if c.WarehouseSchema == "" {
		c.WarehouseSchema = dw.DefaultSchema
	}
	if c.Pipeline.MaxRetries == 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Pipeline.RetryDelay == 0 {
		c.Pipeline.RetryDelay = 5 * time.Second
	}
	if c.Pipeline.CheckpointFile == "" {
		c.Pipeline.CheckpointFile = checkpoint.DefaultFile
	}
	if c.Pipeline.LogsDir == "" {
		c.Pipeline.LogsDir = "logs"
	}
	if len(c.Quality.CoreTables) == 0 {
		c.Quality.CoreTables = append([]string{}, quality.DefaultCoreTables...)
	}
	if c.FactChunkSize == 0 {
		c.FactChunkSize = fact.DefaultChunkSize
	}
	if len(c.Sources) == 0 {
		c.Sources = DefaultSources()
	}
}

// CatalogOptions returns the warehouse options described by the configuration.
func (c *Config) CatalogOptions() (dw.Options, error) {
	opts := dw.DefaultOptions()
	opts.Schema = c.WarehouseSchema

	var err error
	if c.DateDimension.Start != "" {
		if opts.DateStart, err = time.Parse(dateLayout, c.DateDimension.Start); err != nil {
			return opts, errors.Wrap(err, "invalid date_dimension.start")
		}
	}
	if c.DateDimension.End != "" {
		if opts.DateEnd, err = time.Parse(dateLayout, c.DateDimension.End); err != nil {
			return opts, errors.Wrap(err, "invalid date_dimension.end")
		}
	}
	if opts.DateEnd.Before(opts.DateStart) {
		return opts, errors.Errorf("date_dimension.end %s is before start %s", opts.DateEnd.Format(dateLayout), opts.DateStart.Format(dateLayout))
	}

	return opts, nil
}

// SourceTables lists the relational tables of the configured sources in name order.
func (c *Config) SourceTables() []string {
	tables := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		tables = append(tables, s.Table)
	}
	sort.Strings(tables)
	return tables
}

func (c *Config) Persist() error {
	return c.PersistToFs(c.fs)
}

func (c *Config) PersistToFs(fs afero.Fs) error {
	if err := path2.WriteYaml(fs, c.path, c); err != nil {
		return err
	}

	// the file may hold the database password
	return ensureConfigIsInGitignore(fs, c.path)
}

func LoadFromFile(fs afero.Fs, path string) (*Config, error) {
	var config Config

	err := path2.ReadYaml(fs, path, &config)
	if err != nil {
		return nil, err
	}

	config.fs = fs
	config.path = path
	config.applyDefaults()

	return &config, nil
}

// LoadOrDefault reads the configuration file, falling back to the defaults when it does not exist.
func LoadOrDefault(fs afero.Fs, path string) (*Config, error) {
	config, err := LoadFromFile(fs, path)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, fs2.ErrNotExist) {
		return nil, err
	}

	config = Default()
	config.fs = fs
	config.path = path
	return config, nil
}

func ensureConfigIsInGitignore(fs afero.Fs, filePath string) (err error) {
	gitignorePath := path.Join(path.Dir(filePath), ".gitignore")
	exists, err := afero.Exists(fs, gitignorePath)
	if err != nil {
		return err
	}

	fileNameToIgnore := path.Base(filePath)
	if !exists {
		return afero.WriteFile(fs, gitignorePath, []byte(fileNameToIgnore+"\n"), 0o644)
	}

	file, err := fs.OpenFile(gitignorePath, os.O_APPEND|os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", gitignorePath, closeErr)
		}
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == fileNameToIgnore {
			return nil
		}
	}

	_, err = file.Write([]byte("\n" + fileNameToIgnore + "\n"))
	return err
}
