// ABOUTME: File mutation engine: preview/apply pairs for write, append, patch, rename, mkdir
// ABOUTME: Apply backs up first, writes, validates, and rolls back on validation failure

package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mauromedda/pi-effector/internal/diff"
	"github.com/mauromedda/pi-effector/internal/log"
	"github.com/mauromedda/pi-effector/internal/permission"
	"github.com/mauromedda/pi-effector/internal/revert"
	"github.com/mauromedda/pi-effector/internal/types"
)

// Limits caps the size of mutation results.
type Limits struct {
	MaxWriteBytes  int // cap on the written content
	MaxAppendBytes int // cap on the appended content
	MaxPatchBytes  int // cap on the patched result
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{MaxWriteBytes: 300_000, MaxAppendBytes: 300_000, MaxPatchBytes: 300_000}
}

// Workspace binds an operation to a project: Dir resolves relative paths
// (empty means the primary safe root) and Ledger receives the backups.
type Workspace struct {
	Dir    string
	Ledger *revert.Ledger
}

// Mutation is one of Write, Append, Patch, Rename, Mkdir.
type Mutation interface {
	mutation()
}

// Write replaces a file's content.
type Write struct {
	Path      string
	Content   string
	Overwrite bool
}

// Append adds content to the end of a file, creating it if absent.
type Append struct {
	Path    string
	Content string
}

// Patch edits a file around an anchor or between markers.
type Patch struct {
	Path        string
	Op          PatchOp
	Content     string
	Anchor      string
	StartMarker string
	EndMarker   string
	Occurrence  int
}

// Rename moves Src to Dst, or to a sibling called NewName when Dst is empty.
type Rename struct {
	Src     string
	Dst     string
	NewName string
}

// Mkdir creates a directory.
type Mkdir struct {
	Path    string
	Parents bool
}

func (Write) mutation()  {}
func (Append) mutation() {}
func (Patch) mutation()  {}
func (Rename) mutation() {}
func (Mkdir) mutation()  {}

// Kind names a mutation in previews and results.
type Kind string

const (
	KindWrite  Kind = "write"
	KindAppend Kind = "append"
	KindPatch  Kind = "patch"
	KindRename Kind = "rename"
	KindMkdir  Kind = "mkdir"
)

// Preview is the computed effect of a mutation. It is produced without
// touching the filesystem.
type Preview struct {
	Kind    Kind   `json:"kind"`
	Path    string `json:"path,omitempty"`
	Src     string `json:"src,omitempty"`
	Dst     string `json:"dst,omitempty"`
	Existed bool   `json:"existed"`
	Note    string `json:"note,omitempty"`
	Before  string `json:"-"`
	After   string `json:"-"`
}

// Diff renders the preview as a unified diff; empty for rename/mkdir.
func (p Preview) Diff() string {
	if p.Kind == KindRename || p.Kind == KindMkdir {
		return ""
	}
	return diff.Unified(p.Path, p.Before, p.After)
}

// Outcome is the success payload of an applied mutation.
type Outcome struct {
	Path        string `json:"path,omitempty"`
	Src         string `json:"src,omitempty"`
	Dst         string `json:"dst,omitempty"`
	Bytes       int    `json:"bytes,omitempty"`
	Added       int    `json:"lines_added,omitempty"`
	Removed     int    `json:"lines_removed,omitempty"`
	BackupCount int    `json:"backup_count"`
	Checked     bool   `json:"syntax_checked,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Engine applies model-proposed file mutations inside the sandbox.
type Engine struct {
	sb         *permission.Sandbox
	limits     Limits
	validators *Validators
}

// NewEngine creates an Engine. A nil validators set disables post-write checks.
func NewEngine(sb *permission.Sandbox, limits Limits, validators *Validators) *Engine {
	if validators == nil {
		validators = &Validators{}
	}
	return &Engine{sb: sb, limits: limits, validators: validators}
}

// Sandbox returns the engine's sandbox.
func (e *Engine) Sandbox() *permission.Sandbox {
	return e.sb
}

// Preview computes the before/after state of m without writing anything.
func (e *Engine) Preview(ws Workspace, m Mutation) (Preview, error) {
	switch m := m.(type) {
	case Write:
		return e.previewWrite(ws, m)
	case Append:
		return e.previewAppend(ws, m)
	case Patch:
		return e.previewPatch(ws, m)
	case Rename:
		return e.previewRename(ws, m)
	case Mkdir:
		return e.previewMkdir(ws, m)
	default:
		return Preview{}, fmt.Errorf("unsupported mutation %T", m)
	}
}

// Apply performs m: backup, write, validate. A failed validation restores
// the previous content (or removes a newly created file) before returning
// a syntax_validation_failed error.
func (e *Engine) Apply(ctx context.Context, ws Workspace, m Mutation) (Outcome, error) {
	if ws.Ledger == nil {
		return Outcome{}, errors.New("apply: workspace has no ledger")
	}

	p, err := e.Preview(ws, m)
	if err != nil {
		return Outcome{}, err
	}

	switch p.Kind {
	case KindRename:
		return e.applyRename(ws, p)
	case KindMkdir:
		return e.applyMkdir(ws, p, m.(Mkdir).Parents)
	default:
		return e.applyContent(ctx, ws, p)
	}
}

func (e *Engine) resolveText(ws Workspace, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", types.Errorf(types.KindInvalidPath, "path is required")
	}
	abs, err := e.sb.Resolve(ws.Dir, path)
	if err != nil {
		return "", err
	}
	if err := e.sb.EnsureTextSafe(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// readCurrent returns the file's content and whether it exists.
func readCurrent(path string) (string, bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", true, types.Errorf(types.KindPathExists, "%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", true, fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), true, nil
}

func (e *Engine) previewWrite(ws Workspace, m Write) (Preview, error) {
	abs, err := e.resolveText(ws, m.Path)
	if err != nil {
		return Preview{}, err
	}
	before, existed, err := readCurrent(abs)
	if err != nil {
		return Preview{}, err
	}
	if existed && !m.Overwrite {
		return Preview{}, types.Errorf(types.KindFileExists, "%s already exists and overwrite is false", abs)
	}
	if err := capSize(len(m.Content), e.limits.MaxWriteBytes); err != nil {
		return Preview{}, err
	}
	return Preview{Kind: KindWrite, Path: abs, Existed: existed, Before: before, After: m.Content}, nil
}

func (e *Engine) previewAppend(ws Workspace, m Append) (Preview, error) {
	abs, err := e.resolveText(ws, m.Path)
	if err != nil {
		return Preview{}, err
	}
	before, existed, err := readCurrent(abs)
	if err != nil {
		return Preview{}, err
	}
	if err := capSize(len(m.Content), e.limits.MaxAppendBytes); err != nil {
		return Preview{}, err
	}
	return Preview{Kind: KindAppend, Path: abs, Existed: existed, Before: before, After: before + m.Content}, nil
}

func (e *Engine) previewPatch(ws Workspace, m Patch) (Preview, error) {
	abs, err := e.resolveText(ws, m.Path)
	if err != nil {
		return Preview{}, err
	}
	before, existed, err := readCurrent(abs)
	if err != nil {
		return Preview{}, err
	}
	after, err := applyPatch(before, m)
	if err != nil {
		return Preview{}, err
	}
	if err := capSize(len(after), e.limits.MaxPatchBytes); err != nil {
		return Preview{}, err
	}
	return Preview{Kind: KindPatch, Path: abs, Existed: existed, Before: before, After: after}, nil
}

func (e *Engine) previewRename(ws Workspace, m Rename) (Preview, error) {
	if strings.TrimSpace(m.Src) == "" {
		return Preview{}, types.Errorf(types.KindInvalidPath, "src is required")
	}
	src, err := e.sb.Resolve(ws.Dir, m.Src)
	if err != nil {
		return Preview{}, err
	}
	if _, err := os.Lstat(src); err != nil {
		return Preview{}, types.Errorf(types.KindSourceNotFound, "%s does not exist", src)
	}

	var dst string
	switch {
	case m.Dst != "":
		dst, err = e.sb.Resolve(ws.Dir, m.Dst)
	case m.NewName != "":
		if strings.ContainsAny(m.NewName, `/\`) || m.NewName == "." || m.NewName == ".." {
			return Preview{}, types.Errorf(types.KindInvalidPath, "new_name must be a plain file name, got %q", m.NewName)
		}
		dst, err = e.sb.Resolve("", filepath.Join(filepath.Dir(src), m.NewName))
	default:
		return Preview{}, types.Errorf(types.KindDestinationRequired, "dst or new_name is required")
	}
	if err != nil {
		return Preview{}, err
	}
	if _, err := os.Lstat(dst); err == nil {
		return Preview{}, types.Errorf(types.KindDestinationExists, "%s already exists", dst)
	}
	return Preview{Kind: KindRename, Src: src, Dst: dst, Existed: true}, nil
}

func (e *Engine) previewMkdir(ws Workspace, m Mkdir) (Preview, error) {
	if strings.TrimSpace(m.Path) == "" {
		return Preview{}, types.Errorf(types.KindInvalidPath, "path is required")
	}
	abs, err := e.sb.Resolve(ws.Dir, m.Path)
	if err != nil {
		return Preview{}, err
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return Preview{Kind: KindMkdir, Path: abs, Existed: true, Note: "already exists"}, nil
	case err == nil:
		return Preview{}, types.Errorf(types.KindPathExists, "%s exists and is not a directory", abs)
	case errors.Is(err, fs.ErrNotExist):
		return Preview{Kind: KindMkdir, Path: abs, Note: "will create"}, nil
	default:
		return Preview{}, fmt.Errorf("stat %s: %w", abs, err)
	}
}

func (e *Engine) applyContent(ctx context.Context, ws Workspace, p Preview) (Outcome, error) {
	backup, err := ws.Ledger.BackupIfExists(p.Path)
	if err != nil {
		return Outcome{}, err
	}
	var backups []revert.BackupEntry
	if backup != nil {
		backups = append(backups, *backup)
	}
	entries := backups
	if backup == nil && !p.Existed {
		entries = []revert.BackupEntry{ws.Ledger.Created(p.Path)}
	}

	if err := writeText(p.Path, p.After); err != nil {
		return Outcome{}, err
	}

	if verr := e.validators.Check(ctx, p.Path); verr != nil {
		if rerr := rollback(p.Path, backup); rerr != nil {
			log.Error("rollback of %s failed: %v", p.Path, rerr)
			return Outcome{}, types.Wrap(types.KindSyntaxValidation, verr, "rollback failed: "+rerr.Error())
		}
		log.Warn("validation failed for %s; rolled back", p.Path)
		return Outcome{}, types.Wrap(types.KindSyntaxValidation, verr, "")
	}

	if err := ws.Ledger.RecordLast(entries); err != nil {
		return Outcome{}, err
	}

	added, removed := diff.Stats(p.Before, p.After)
	return Outcome{
		Path:        p.Path,
		Bytes:       len(p.After),
		Added:       added,
		Removed:     removed,
		BackupCount: len(backups),
		Checked:     e.validators.Has(p.Path),
	}, nil
}

func (e *Engine) applyRename(ws Workspace, p Preview) (Outcome, error) {
	backup, err := ws.Ledger.BackupIfExists(p.Src)
	if err != nil {
		return Outcome{}, err
	}
	var backups []revert.BackupEntry
	if backup != nil {
		backups = append(backups, *backup)
	}

	if err := os.MkdirAll(filepath.Dir(p.Dst), 0o755); err != nil {
		return Outcome{}, fmt.Errorf("creating directory for %s: %w", p.Dst, err)
	}
	if err := os.Rename(p.Src, p.Dst); err != nil {
		return Outcome{}, fmt.Errorf("renaming %s to %s: %w", p.Src, p.Dst, err)
	}
	entries := backups
	if backup != nil {
		// Undo puts the file back at Src and drops the copy at Dst.
		entries = append(entries, ws.Ledger.Created(p.Dst))
	}
	if err := ws.Ledger.RecordLast(entries); err != nil {
		return Outcome{}, err
	}
	return Outcome{Src: p.Src, Dst: p.Dst, BackupCount: len(backups)}, nil
}

func (e *Engine) applyMkdir(ws Workspace, p Preview, parents bool) (Outcome, error) {
	if p.Existed {
		return Outcome{Path: p.Path, Note: p.Note}, nil
	}
	mk := os.Mkdir
	if parents {
		mk = os.MkdirAll
	}
	// Deepest first, so undo empties each parent before removing it.
	var created []revert.BackupEntry
	for dir := p.Path; !pathExists(dir); dir = filepath.Dir(dir) {
		created = append(created, ws.Ledger.Created(dir))
		if !parents || dir == filepath.Dir(dir) {
			break
		}
	}
	if err := mk(p.Path, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("creating directory %s: %w", p.Path, err)
	}
	if err := ws.Ledger.RecordLast(created); err != nil {
		return Outcome{}, err
	}
	return Outcome{Path: p.Path}, nil
}

// writeText writes content, creating parent directories and keeping the
// permission bits of an existing file.
func writeText(path, content string) error {
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	return nil
}

// rollback restores the backup, or deletes a file that did not exist before.
func rollback(path string, backup *revert.BackupEntry) error {
	if backup != nil {
		return revert.Restore(*backup)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func capSize(n, limit int) error {
	if limit > 0 && n > limit {
		return types.Errorf(types.KindContentTooLarge, "content is %d bytes; maximum is %d", n, limit)
	}
	return nil
}
