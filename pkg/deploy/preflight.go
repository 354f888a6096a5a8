package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bacalhau-project/vpsdeploy/pkg/models"
)

// PreflightError lists every local precondition that failed.
type PreflightError struct {
	Problems []string
}

func (e *PreflightError) Error() string {
	return "preflight failed: " + strings.Join(e.Problems, "; ")
}

// Preflight checks the local build inputs for a deploy. It never touches
// the network.
func Preflight(t *models.Target) error {
	var problems []string

	if !isDir(t.LocalDistDir) {
		problems = append(problems,
			fmt.Sprintf("dist directory not found at %s, run the frontend build first", t.LocalDistDir))
	}
	if !isDir(t.LocalAPIDir) {
		problems = append(problems, fmt.Sprintf("api directory not found at %s", t.LocalAPIDir))
	} else {
		for _, f := range t.BackendFiles {
			if !f.Required {
				continue
			}
			p := filepath.Join(t.LocalAPIDir, filepath.FromSlash(f.Name))
			if !isRegular(p) {
				problems = append(problems, fmt.Sprintf("required backend file missing: %s", p))
			}
		}
	}

	if len(problems) > 0 {
		return &PreflightError{Problems: problems}
	}
	return nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func isRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
