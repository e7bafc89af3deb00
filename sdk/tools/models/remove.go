package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Remove removes the model and projector files. Only files inside the models
// directory can be removed.
func (m *Models) Remove(mp Path) error {
	for _, f := range []string{mp.ModelFile, mp.ProjFile} {
		if f == "" {
			continue
		}

		if !m.owns(f) {
			return fmt.Errorf("remove-model: %q is outside of %q", f, m.modelsPath)
		}

		if err := os.Remove(f); err != nil {
			return fmt.Errorf("remove-model: unable to remove %q: %w", f, err)
		}
	}

	return nil
}

func (m *Models) owns(file string) bool {
	rel, err := filepath.Rel(m.modelsPath, file)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
