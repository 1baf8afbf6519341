// Package models manages the model directories of the companion application.
package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linefleet/linefleet/pkg/archive"
	"github.com/linefleet/linefleet/pkg/configtext"
	"github.com/linefleet/linefleet/pkg/fstree"
	"github.com/linefleet/linefleet/pkg/logutil"
	"github.com/linefleet/linefleet/pkg/transport"
	"github.com/linefleet/linefleet/pkg/util"
	"github.com/samber/lo"
)

const (
	// ScratchDir is the reserved directory under the model root used for
	// transfers. It is never reported as a model.
	ScratchDir = "temp"
	zipExt     = ".zip"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrInvalidName   = errors.New("invalid model name")
	ErrTransfer      = errors.New("model transfer failed")
)

// Descriptor is one installed model.
type Descriptor struct {
	Name      string `json:"ModelName"`
	Path      string `json:"ModelPath"`
	IsCurrent bool   `json:"IsCurrent"`
}

// Transfer moves model archives to and from the controller.
type Transfer interface {
	DownloadFile(ctx context.Context, source, destinationPath string) bool
	UploadFile(ctx context.Context, target, localPath, fieldValue string) (transport.Response, bool)
}

type Store struct {
	logger     *slog.Logger
	root       string
	configFile string
	transfer   Transfer
	now        func() time.Time
}

func NewStore(logger *slog.Logger, root, configFile string, transfer Transfer) *Store {
	return &Store{
		logger:     logger.With("component", "models"),
		root:       root,
		configFile: configFile,
		transfer:   transfer,
		now:        time.Now,
	}
}

// Root returns the model root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the directory of the named model.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) scratchPath(file string) (string, error) {
	dir := filepath.Join(s.root, ScratchDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return filepath.Join(dir, file), nil
}

// CurrentModel returns the model selected in the managed config, or "".
func (s *Store) CurrentModel() string {
	text, err := configtext.ReadFile(s.configFile)
	if err != nil {
		return ""
	}
	return configtext.GetCurrentModel(text)
}

// List scans the top-level model directories.
func (s *Store) List() []Descriptor {
	current := s.CurrentModel()
	dirs := lo.Filter(fstree.Directories(s.root), func(d os.DirEntry, _ int) bool {
		return d.Name() != ScratchDir
	})
	return lo.Map(dirs, func(d os.DirEntry, _ int) Descriptor {
		return Descriptor{
			Name:      d.Name(),
			Path:      s.Path(d.Name()),
			IsCurrent: d.Name() == current,
		}
	})
}

// Change selects name as the current model in the managed config.
func (s *Store) Change(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	path := s.Path(name)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	text, err := configtext.ReadFile(s.configFile)
	if err != nil {
		return err
	}
	if err := configtext.WriteFile(s.configFile, configtext.UpdateCurrentModel(text, name, path, s.now())); err != nil {
		return err
	}
	s.logger.With("model", name).Info("current model changed")
	return nil
}

// Install downloads a model archive and replaces the named model directory
// with its contents. When apply is set the model also becomes current.
func (s *Store) Install(ctx context.Context, name, downloadURL string, apply bool) error {
	if err := validName(name); err != nil {
		return err
	}
	logger := logutil.FromContext(ctx, s.logger).With("model", name)
	zipPath, err := s.scratchPath(util.ScratchName(zipExt))
	if err != nil {
		return err
	}
	defer os.Remove(zipPath)

	logger.With("url", downloadURL).Debug("downloading model")
	if !s.transfer.DownloadFile(ctx, downloadURL, zipPath) {
		return fmt.Errorf("%w: download %s", ErrTransfer, downloadURL)
	}

	dest := s.Path(name)
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("remove previous model: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := archive.Extract(zipPath, dest); err != nil {
		return err
	}
	logger.Info("model installed")

	if apply {
		return s.Change(name)
	}
	return nil
}

// Delete removes the named model directory.
func (s *Store) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	path := s.Path(name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	s.logger.With("model", name).Info("model deleted")
	return nil
}

// Publish zips the contents of the named model and uploads it to uploadURL.
func (s *Store) Publish(ctx context.Context, name, uploadURL string) error {
	if err := validName(name); err != nil {
		return err
	}
	logger := logutil.FromContext(ctx, s.logger).With("model", name)
	path := s.Path(name)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	// the controller keeps the uploaded file name
	zipPath, err := s.scratchPath(name + zipExt)
	if err != nil {
		return err
	}
	defer os.Remove(zipPath)

	if err := archive.Create(path, zipPath); err != nil {
		return err
	}
	logger.With("url", uploadURL).Debug("uploading model")
	resp, ok := s.transfer.UploadFile(ctx, uploadURL, zipPath, name)
	if !ok || !resp.Bool("success") {
		return fmt.Errorf("%w: upload %s", ErrTransfer, uploadURL)
	}
	logger.Info("model published")
	return nil
}
