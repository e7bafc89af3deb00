// Package models provides support for tooling around model management.
package models

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ardanlabs/llava/sdk/tools/defaults"
)

// ErrNotFound is returned when a model file can't be located.
var ErrNotFound = errors.New("model file not found")

// Path returns file path information about a model.
type Path struct {
	ModelFile  string
	ProjFile   string
	Downloaded bool
}

// File provides information about a model file in the models directory.
type File struct {
	Name     string
	Path     string
	IsProj   bool
	Size     int64
	Modified time.Time
}

// Models manages the models directory.
type Models struct {
	modelsPath string
}

// New constructs the models system using the specified path. An empty path
// uses the default models directory.
func New(modelsPath string) *Models {
	return &Models{
		modelsPath: defaults.ModelsDir(modelsPath),
	}
}

// Path returns the location of the models path.
func (m *Models) Path() string {
	return m.modelsPath
}

// Resolve locates the model and projector files. A name that exists as given
// is used directly. Otherwise it is looked up in the models directory, first
// at the top level and then anywhere below it.
func (m *Models) Resolve(modelFile string, projFile string) (Path, error) {
	mf, err := m.find(modelFile)
	if err != nil {
		return Path{}, fmt.Errorf("resolve: model: %w", err)
	}

	pf, err := m.find(projFile)
	if err != nil {
		return Path{}, fmt.Errorf("resolve: projector: %w", err)
	}

	return Path{ModelFile: mf, ProjFile: pf, Downloaded: true}, nil
}

// RetrieveFiles returns all the gguf files in the models directory.
func (m *Models) RetrieveFiles() ([]File, error) {
	var list []File

	err := filepath.WalkDir(m.modelsPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".gguf") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}

		list = append(list, File{
			Name:     d.Name(),
			Path:     path,
			IsProj:   strings.HasPrefix(d.Name(), "mmproj"),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve-files: %w", err)
	}

	slices.SortFunc(list, func(a, b File) int {
		return strings.Compare(a.Path, b.Path)
	})

	return list, nil
}

// =============================================================================

func (m *Models) find(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotFound)
	}

	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	top := filepath.Join(m.modelsPath, name)
	if _, err := os.Stat(top); err == nil {
		return top, nil
	}

	files, err := m.RetrieveFiles()
	if err != nil {
		return "", err
	}

	base := filepath.Base(name)
	for _, f := range files {
		if f.Name == base {
			return f.Path, nil
		}
	}

	return "", fmt.Errorf("%w: %s in %s", ErrNotFound, name, m.modelsPath)
}
