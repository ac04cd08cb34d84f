package checkpoint

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/football-dw/warehouse/pkg/path"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const DefaultFile = "etl_checkpoint.json"

// PipelineStep records the outcome of the whole run and decides whether the next run resumes.
const PipelineStep = "pipeline"

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
)

type Record struct {
	Status    Status         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// AttemptDetails is the typed view of the details the executor writes for every attempt.
type AttemptDetails struct {
	RunID       string `json:"run_id"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
	Interrupted bool   `json:"interrupted"`
}

func (d AttemptDetails) ToMap() map[string]any {
	m := map[string]any{
		"run_id":       d.RunID,
		"attempt":      d.Attempt,
		"max_attempts": d.MaxAttempts,
		"duration_ms":  d.DurationMs,
	}
	if d.Error != "" {
		m["error"] = d.Error
	}
	if d.Interrupted {
		m["interrupted"] = true
	}
	return m
}

func DecodeDetails(details map[string]any) (AttemptDetails, error) {
	var out AttemptDetails
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &out,
	})
	if err != nil {
		return out, err
	}

	return out, errors.Wrap(decoder.Decode(details), "failed to decode checkpoint details")
}

// FileStore keeps every step's latest record in a single JSON file. Each save rewrites the whole file
// atomically, so a crash leaves either the previous or the new content.
type FileStore struct {
	sync.RWMutex
	fs   afero.Fs
	path string
	now  func() time.Time
}

func NewFileStore(fs afero.Fs, path string) *FileStore {
	if path == "" {
		path = DefaultFile
	}

	return &FileStore{fs: fs, path: path, now: time.Now}
}

func (s *FileStore) Path() string {
	return s.path
}

// All returns every record. A missing file is an empty store.
func (s *FileStore) All() (map[string]Record, error) {
	s.RLock()
	defer s.RUnlock()

	return s.read()
}

func (s *FileStore) Get(step string) (Record, bool, error) {
	records, err := s.All()
	if err != nil {
		return Record{}, false, err
	}

	rec, ok := records[step]
	return rec, ok, nil
}

func (s *FileStore) Save(step string, status Status, details map[string]any) error {
	s.Lock()
	defer s.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	records[step] = Record{
		Status:    status,
		Timestamp: s.now().UTC(),
		Details:   details,
	}

	content, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal checkpoints")
	}

	return path.WriteFileAtomic(s.fs, s.path, content)
}

func (s *FileStore) Reset() error {
	s.Lock()
	defer s.Unlock()

	err := s.fs.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove checkpoint file %s", s.path)
	}
	return nil
}

// ReopenFinished clears the store when its last run finished successfully, so steps saved afterwards belong
// to an unfinished run that the next pipeline run resumes. It reports whether the store was cleared.
func (s *FileStore) ReopenFinished() (bool, error) {
	s.Lock()
	defer s.Unlock()

	records, err := s.read()
	if err != nil {
		return false, err
	}
	if rec, ok := records[PipelineStep]; !ok || rec.Status != StatusSuccess {
		return false, nil
	}

	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return false, errors.Wrapf(err, "failed to remove checkpoint file %s", s.path)
	}
	return true, nil
}

func (s *FileStore) read() (map[string]Record, error) {
	content, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		return make(map[string]Record), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint file %s", s.path)
	}

	records := make(map[string]Record)
	if len(content) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, errors.Wrapf(err, "checkpoint file %s is corrupt", s.path)
	}

	return records, nil
}
