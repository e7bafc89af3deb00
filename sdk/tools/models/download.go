package models

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hybridgroup/yzma/pkg/download"
)

// Logger represents a logger for capturing events.
type Logger func(ctx context.Context, msg string, args ...any)

// Download performs a complete workflow for downloading and installing the
// specified model and projector. Files that already exist are not downloaded
// again.
func (m *Models) Download(ctx context.Context, log Logger, modelURL string, projURL string) (Path, error) {
	if modelURL == "" || projURL == "" {
		return Path{}, fmt.Errorf("download-model: model and projector urls are required")
	}

	modelFile, downloadedMF, err := m.pullFile(ctx, log, modelURL)
	if err != nil {
		return Path{}, fmt.Errorf("download-model: %w", err)
	}

	projFile, downloadedPF, err := m.pullFile(ctx, log, projURL)
	if err != nil {
		return Path{}, fmt.Errorf("download-model: %w", err)
	}

	mp := Path{
		ModelFile:  modelFile,
		ProjFile:   projFile,
		Downloaded: downloadedMF || downloadedPF,
	}

	switch mp.Downloaded {
	case true:
		log(ctx, "download-model", "status", "downloaded", "model-file", modelFile, "proj-file", projFile)

	default:
		log(ctx, "download-model", "status", "already exists", "model-file", modelFile, "proj-file", projFile)
	}

	return mp, nil
}

// =============================================================================

func (m *Models) pullFile(ctx context.Context, log Logger, fileURL string) (string, bool, error) {
	filePath, fileName, err := m.filePathAndName(fileURL)
	if err != nil {
		return "", false, fmt.Errorf("pull-file: %w", err)
	}

	if size, err := fileSize(fileName); err == nil && size > 0 {
		return fileName, false, nil
	}

	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("pull-file: %w", err)
	}

	if !hasNetwork() {
		return "", false, fmt.Errorf("pull-file: no network available")
	}

	if err := os.MkdirAll(filePath, 0755); err != nil {
		return "", false, fmt.Errorf("pull-file: unable to create model path: %w", err)
	}

	log(ctx, "download-model", "status", "downloading", "url", fileURL, "path", filePath)

	if err := download.GetModel(fileURL, filePath); err != nil {
		return "", false, fmt.Errorf("pull-file: unable to download model: %w", err)
	}

	if _, err := os.Stat(fileName); err != nil {
		return "", false, fmt.Errorf("pull-file: downloaded file missing: %w", err)
	}

	return fileName, true, nil
}

// filePathAndName keeps the huggingface org and repo as folders so files with
// the same name from different repos don't collide.
func (m *Models) filePathAndName(fileURL string) (string, string, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "", "", fmt.Errorf("file-path-and-name: unable to parse url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("file-path-and-name: invalid url: %q", fileURL)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", "", fmt.Errorf("file-path-and-name: no file in url: %q", fileURL)
	}

	filePath := m.modelsPath

	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if strings.HasSuffix(u.Host, "huggingface.co") && len(parts) >= 3 {
		filePath = filepath.Join(m.modelsPath, parts[0], parts[1])
	}

	return filePath, filepath.Join(filePath, name), nil
}

func fileSize(filePath string) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

func hasNetwork() bool {
	conn, err := net.DialTimeout("tcp", "8.8.8.8:53", 3*time.Second)
	if err != nil {
		return false
	}

	conn.Close()

	return true
}
