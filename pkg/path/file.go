package path

import (
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func ReadYaml(fs afero.Fs, path string, out interface{}) error {
	buf, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrapf(err, "failed to read file %s", path)
	}

	return ConvertYamlToObject(buf, out)
}

func WriteYaml(fs afero.Fs, path string, content interface{}) error {
	buf, err := yaml.Marshal(content)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal object to yaml")
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create the directory for %s", path)
	}

	err = afero.WriteFile(fs, path, buf, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to write YAML file to %s", path)
	}

	return nil
}

func ConvertYamlToObject(buf []byte, out interface{}) error {
	err := yaml.Unmarshal(buf, out)
	if err != nil {
		return err
	}

	return validate.Struct(out)
}

// WriteFileAtomic replaces path with content without ever leaving a partially written file behind.
func WriteFileAtomic(fs afero.Fs, path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return errors.Wrapf(err, "failed to write temporary file %s", tmpName)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return errors.Wrapf(err, "failed to sync temporary file %s", tmpName)
	}

	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return errors.Wrapf(err, "failed to close temporary file %s", tmpName)
	}

	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return errors.Wrapf(err, "failed to move %s into place", tmpName)
	}

	return nil
}

func FileExists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

func DirExists(fs afero.Fs, searchDir string) bool {
	res, err := afero.DirExists(fs, searchDir)
	return err == nil && res
}
