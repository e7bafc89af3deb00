// Package libs provides llama.cpp library support.
package libs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardanlabs/llava/sdk/tools/defaults"
	"github.com/hybridgroup/yzma/pkg/download"
)

const (
	versionFile = "version.json"
	tempFolder  = "temp"
)

// ErrInvalidArguments is returned when the library settings can't be used.
var ErrInvalidArguments = errors.New("invalid arguments")

// Logger represents a logger for capturing events.
type Logger func(ctx context.Context, msg string, args ...any)

// VersionTag represents information about the installed version of llama.cpp.
type VersionTag struct {
	Version   string `json:"version"`
	Processor string `json:"processor"`
	Latest    string `json:"-"`
}

// Libs manages the library system.
type Libs struct {
	path         string
	processor    download.Processor
	allowUpgrade bool
}

// New constructs a library config for downloading based on raw values that
// would come from configuration. Empty values are replaced with defaults.
// libPath     : represents the path the llama.cpp libraries will/are installed in.
// processor   : represents the hardware (cpu, cuda, metal, vulkan).
// allowUpgrade: true or false to determine to upgrade libraries when available.
func New(libPath string, processor string, allowUpgrade bool) (*Libs, error) {
	proc, err := defaults.Processor(processor)
	if err != nil {
		return nil, fmt.Errorf("new: %w: processor %q: %w", ErrInvalidArguments, processor, err)
	}

	lib := Libs{
		path:         defaults.LibsDir(libPath),
		processor:    proc,
		allowUpgrade: allowUpgrade,
	}

	return &lib, nil
}

// LibsPath returns the location of the libraries path.
func (lib *Libs) LibsPath() string {
	return lib.path
}

// Processor returns the hardware system being used.
func (lib *Libs) Processor() download.Processor {
	return lib.processor
}

// Download performs a complete workflow for downloading and installing
// the latest version of llama.cpp.
func (lib *Libs) Download(ctx context.Context, log Logger) (VersionTag, error) {
	log(ctx, "download-libraries", "status", "check libraries version information", "path", lib.path, "processor", lib.processor)

	tag, err := lib.VersionInformation()
	if err != nil {
		if tag.Version == "" {
			return VersionTag{}, fmt.Errorf("download-libraries: error retrieving version info: %w", err)
		}

		log(ctx, "download-libraries", "status", "unable to check latest version, using installed version", "current", tag.Version)
		return tag, nil
	}

	log(ctx, "download-libraries", "status", "check llama.cpp installation", "latest", tag.Latest, "current", tag.Version)

	if isTagMatch(tag, lib) {
		log(ctx, "download-libraries", "status", "already installed", "latest", tag.Latest, "current", tag.Version)
		return tag, nil
	}

	if tag.Version != "" && !lib.allowUpgrade {
		log(ctx, "download-libraries", "status", "bypassing upgrade", "latest", tag.Latest, "current", tag.Version)
		return tag, nil
	}

	newTag, err := lib.install(tag.Latest)
	if err != nil {
		log(ctx, "download-libraries", "status", "llama.cpp installation", "ERROR", err)

		if current, err := lib.InstalledVersion(); err == nil {
			log(ctx, "download-libraries", "status", "failed to install new version, using current version", "current", current.Version)
			return current, nil
		}

		return VersionTag{}, fmt.Errorf("download-libraries: failed to install llama: %q: error: %w", lib.path, err)
	}

	log(ctx, "download-libraries", "status", "updated llama.cpp installed", "old-version", tag.Version, "current", newTag.Version)

	return newTag, nil
}

// InstalledVersion retrieves the current version of llama.cpp installed.
func (lib *Libs) InstalledVersion() (VersionTag, error) {
	versionInfoPath := filepath.Join(lib.path, versionFile)

	d, err := os.ReadFile(versionInfoPath)
	if err != nil {
		return VersionTag{}, fmt.Errorf("installed-version: unable to read version info file: %w", err)
	}

	var tag VersionTag
	if err := json.Unmarshal(d, &tag); err != nil {
		return VersionTag{}, fmt.Errorf("installed-version: unable to parse version info file: %w", err)
	}

	return tag, nil
}

// VersionInformation retrieves the current version of llama.cpp that is
// published on GitHub and the current installed version.
func (lib *Libs) VersionInformation() (VersionTag, error) {
	tag, _ := lib.InstalledVersion()

	// The download fails when this variable is set.
	if os.Getenv("GITHUB_TOKEN") != "" {
		os.Unsetenv("GITHUB_TOKEN")
	}

	version, err := download.LlamaLatestVersion()
	if err != nil {
		return tag, fmt.Errorf("version-information: unable to get latest version of llama.cpp: %w", err)
	}

	tag.Latest = version

	return tag, nil
}

// =============================================================================

func (lib *Libs) install(version string) (VersionTag, error) {
	tempPath := filepath.Join(lib.path, tempFolder)

	if err := os.MkdirAll(lib.path, 0755); err != nil {
		return VersionTag{}, fmt.Errorf("install: unable to create lib path: %w", err)
	}

	if err := download.InstallLibraries(tempPath, lib.processor, true); err != nil {
		os.RemoveAll(tempPath)
		return VersionTag{}, fmt.Errorf("install: unable to install llama.cpp: %w", err)
	}

	if err := swapTempForLib(lib.path, tempPath); err != nil {
		os.RemoveAll(tempPath)
		return VersionTag{}, fmt.Errorf("install: unable to swap temp for lib: %w", err)
	}

	tag := VersionTag{
		Version:   version,
		Processor: fmt.Sprint(lib.processor),
		Latest:    version,
	}

	if err := writeVersionFile(lib.path, tag); err != nil {
		return VersionTag{}, fmt.Errorf("install: %w", err)
	}

	return tag, nil
}

func swapTempForLib(libPath string, tempPath string) error {
	entries, err := os.ReadDir(libPath)
	if err != nil {
		return fmt.Errorf("swap-temp-for-lib: unable to read libPath: %w", err)
	}

	for _, entry := range entries {
		if entry.Name() == tempFolder {
			continue
		}

		os.RemoveAll(filepath.Join(libPath, entry.Name()))
	}

	tempEntries, err := os.ReadDir(tempPath)
	if err != nil {
		return fmt.Errorf("swap-temp-for-lib: unable to read temp: %w", err)
	}

	for _, entry := range tempEntries {
		src := filepath.Join(tempPath, entry.Name())
		dst := filepath.Join(libPath, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("swap-temp-for-lib: unable to move %s: %w", entry.Name(), err)
		}
	}

	os.RemoveAll(tempPath)

	return nil
}

func writeVersionFile(libPath string, tag VersionTag) error {
	d, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("write-version-file: marshalling version info: %w", err)
	}

	if err := os.WriteFile(filepath.Join(libPath, versionFile), d, 0644); err != nil {
		return fmt.Errorf("write-version-file: writing version info: %w", err)
	}

	return nil
}

func isTagMatch(tag VersionTag, lib *Libs) bool {
	return tag.Latest == tag.Version && tag.Processor == fmt.Sprint(lib.processor)
}
