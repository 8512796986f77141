// Package workspace implements the driver-files workspace (spec §4.1,
// C1): decoding, unpacking, and scoping an on-disk tree of driver scripts
// for a single request, and destroying it on request.
//
// Extraction uses the standard library's archive/zip and encoding/base64;
// no third-party archive library appears anywhere in the example corpus
// this module was grounded on, so the standard library is the idiomatic
// choice here.
package workspace

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/justapithecus/resourcedriver/rderr"
)

// Config configures the workspace manager.
type Config struct {
	// Root is the filesystem directory under which every tree is
	// materialized (spec §6 scripts_workspace, default ./scripts_workspace).
	Root string
}

// Manager builds and releases scoped driver-files trees under a shared
// workspace root. Safe for concurrent use: tree names are unique per
// request (the caller mints them, typically a request_id), so concurrent
// BuildTree calls never collide on the same path.
type Manager struct {
	root string
}

// New creates a Manager, creating the workspace root directory if it
// does not already exist. Tolerates a concurrent creator: MkdirAll
// treats "already exists" as success.
func New(cfg Config) (*Manager, error) {
	if cfg.Root == "" {
		cfg.Root = "./scripts_workspace"
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, rderr.New(rderr.ErrResourceDriverError, "workspace.New", err)
	}
	return &Manager{root: cfg.Root}, nil
}

// BuildTree decodes base64Zip, extracts it under a tree named treeName,
// and returns a DirectoryTree rooted at the extraction path. Per spec
// §4.1:
//  1. derives a package path (<root>/<treeName>.zip) and an extraction
//     path (<root>/<treeName>);
//  2. removes either path if it already exists (idempotent cleanup);
//  3. decodes and writes the archive bytes;
//  4. verifies the bytes are a valid ZIP, rejecting anything else as
//     InvalidDriverFiles;
//  5. extracts every entry, guarding against path traversal;
//  6. deletes the package file and returns the tree.
//
// Never partially succeeds: on any failure the extraction directory is
// either absent or removed before returning.
func (m *Manager) BuildTree(treeName string, base64Zip string) (*DirectoryTree, error) {
	packagePath := m.packagePath(treeName)
	extractPath := m.extractPath(treeName)

	if err := m.clearExisting(packagePath, extractPath); err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(base64Zip)
	if err != nil {
		return nil, rderr.New(rderr.ErrInvalidDriverFiles, "build_tree.decode", err)
	}

	if err := os.WriteFile(packagePath, raw, 0o644); err != nil {
		return nil, rderr.New(rderr.ErrResourceDriverError, "build_tree.write", err)
	}

	if err := extractZip(raw, extractPath); err != nil {
		_ = os.Remove(packagePath)
		_ = os.RemoveAll(extractPath)
		return nil, err
	}

	if err := os.Remove(packagePath); err != nil && !os.IsNotExist(err) {
		_ = os.RemoveAll(extractPath)
		return nil, rderr.New(rderr.ErrResourceDriverError, "build_tree.cleanup_package", err)
	}

	return &DirectoryTree{root: extractPath}, nil
}

func (m *Manager) packagePath(treeName string) string {
	return filepath.Join(m.root, treeName+".zip")
}

func (m *Manager) extractPath(treeName string) string {
	return filepath.Join(m.root, treeName)
}

// clearExisting removes any prior artifacts for this tree name, making
// BuildTree idempotent regardless of what state a previous (possibly
// crashed) call left behind.
func (m *Manager) clearExisting(packagePath, extractPath string) error {
	if _, err := os.Stat(packagePath); err == nil {
		if err := os.Remove(packagePath); err != nil {
			return rderr.New(rderr.ErrResourceDriverError, "build_tree.clear_package", err)
		}
	}
	if _, err := os.Stat(extractPath); err == nil {
		if err := os.RemoveAll(extractPath); err != nil {
			return rderr.New(rderr.ErrResourceDriverError, "build_tree.clear_extracted", err)
		}
	}
	return nil
}

// extractZip validates raw as a ZIP archive and extracts every entry
// under destRoot, rejecting any entry whose resolved path would escape
// destRoot (spec §9 "Open question — path traversal": the source does
// not guard this; this rewrite does).
func extractZip(raw []byte, destRoot string) error {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return rderr.New(rderr.ErrInvalidDriverFiles, "build_tree.open_zip", err)
	}

	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "build_tree.mkdir", err)
	}

	for _, entry := range reader.File {
		if err := extractEntry(entry, destRoot); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, destRoot string) error {
	targetPath := filepath.Join(destRoot, entry.Name)

	cleanRoot := filepath.Clean(destRoot) + string(os.PathSeparator)
	cleanTarget := filepath.Clean(targetPath)
	if cleanTarget != filepath.Clean(destRoot) && !strings.HasPrefix(cleanTarget+string(os.PathSeparator), cleanRoot) {
		return rderr.New(rderr.ErrInvalidDriverFiles, "build_tree.path_traversal",
			fmt.Errorf("zip entry %q escapes extraction root", entry.Name))
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(targetPath, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "build_tree.mkdir_parent", err)
	}

	src, err := entry.Open()
	if err != nil {
		return rderr.New(rderr.ErrInvalidDriverFiles, "build_tree.open_entry", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode().Perm()|0o600)
	if err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "build_tree.create_entry", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "build_tree.write_entry", err)
	}
	return nil
}
