package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/bacalhau-project/vpsdeploy/pkg/sshutils"
)

var ErrMissingLocalFile = errors.New("required local file is missing")

// Transfer is one unit of an upload: a directory to create or a file to
// copy.
type Transfer struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
	Dir    bool   `json:"dir,omitempty"`
}

type UploadStats struct {
	Dirs    int   `json:"dirs"`
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"`
	Skipped int   `json:"skipped,omitempty"`
}

func (s UploadStats) String() string {
	out := fmt.Sprintf("%d files, %d directories, %d bytes", s.Files, s.Dirs, s.Bytes)
	if s.Skipped > 0 {
		out += fmt.Sprintf(", %d skipped", s.Skipped)
	}
	return out
}

// PlanUpload expands localDir into transfers rooted at remoteDir. Each
// directory precedes its children and entries follow os.ReadDir order.
// Symlinks and other non-regular entries are left out and counted as
// skipped.
func PlanUpload(ctx context.Context, localDir, remoteDir string) ([]Transfer, int, error) {
	info, err := os.Stat(localDir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat local directory: %w", err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("local path %s is not a directory", localDir)
	}

	var plan []Transfer
	skipped := 0
	var walk func(local, remote string) error
	walk = func(local, remote string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		plan = append(plan, Transfer{Local: local, Remote: remote, Dir: true})

		entries, err := os.ReadDir(local)
		if err != nil {
			return fmt.Errorf("failed to read local directory %s: %w", local, err)
		}
		for _, entry := range entries {
			l := filepath.Join(local, entry.Name())
			r := path.Join(remote, entry.Name())
			switch {
			case entry.IsDir():
				if err := walk(l, r); err != nil {
					return err
				}
			case entry.Type().IsRegular():
				plan = append(plan, Transfer{Local: l, Remote: r})
			default:
				logger.FromContext(ctx).Warnf("Skipping non-regular file: %s", l)
				skipped++
			}
		}
		return nil
	}

	if err := walk(localDir, remoteDir); err != nil {
		return nil, skipped, err
	}
	return plan, skipped, nil
}

// UploadDir reproduces localDir under remoteDir, one directory creation per
// directory and one transfer per file, sequentially.
func UploadDir(ctx context.Context, client sshutils.SFTPClienter, localDir, remoteDir string) (UploadStats, error) {
	plan, skipped, err := PlanUpload(ctx, localDir, remoteDir)
	stats := UploadStats{Skipped: skipped}
	if err != nil {
		return stats, err
	}
	err = execute(ctx, client, plan, localDir, &stats)
	return stats, err
}

// PlanFiles resolves the backend file list against localDir. Missing
// optional files are returned by name; a missing required file is an
// ErrMissingLocalFile.
func PlanFiles(localDir, remoteDir string, files []models.FileSpec) ([]Transfer, []string, error) {
	plan := []Transfer{{Local: localDir, Remote: remoteDir, Dir: true}}
	var missing []string
	for _, f := range files {
		local := filepath.Join(localDir, filepath.FromSlash(f.Name))
		info, err := os.Stat(local)
		switch {
		case err == nil && info.Mode().IsRegular():
			plan = append(plan, Transfer{Local: local, Remote: path.Join(remoteDir, f.Name)})
		case err == nil:
			return nil, nil, fmt.Errorf("backend file %s is not a regular file", local)
		case !os.IsNotExist(err):
			return nil, nil, fmt.Errorf("failed to stat %s: %w", local, err)
		case f.Required:
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingLocalFile, local)
		default:
			missing = append(missing, f.Name)
		}
	}
	return plan, missing, nil
}

// UploadFiles copies the listed backend files from localDir into remoteDir.
// All required files are checked before anything is sent.
func UploadFiles(
	ctx context.Context,
	client sshutils.SFTPClienter,
	localDir, remoteDir string,
	files []models.FileSpec,
) (UploadStats, error) {
	plan, missing, err := PlanFiles(localDir, remoteDir, files)
	if err != nil {
		return UploadStats{}, err
	}
	for _, name := range missing {
		logger.FromContext(ctx).Infof("Optional file not present, skipping: %s", name)
	}

	stats := UploadStats{Skipped: len(missing)}
	err = execute(ctx, client, plan, localDir, &stats)
	return stats, err
}

func execute(ctx context.Context, client sshutils.SFTPClienter, plan []Transfer, base string, stats *UploadStats) error {
	l := logger.FromContext(ctx)
	for _, t := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.Dir {
			created, err := sshutils.MkdirIfNotExists(client, t.Remote)
			if err != nil {
				return err
			}
			if created {
				l.Debugf("Created remote directory: %s", t.Remote)
			}
			stats.Dirs++
			continue
		}

		n, err := sshutils.PutFile(ctx, client, t.Local, t.Remote)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += n
		l.Infof("  Uploaded: %s", relative(base, t.Local))
	}
	return nil
}

func relative(base, p string) string {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}
