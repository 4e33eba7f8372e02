// ABOUTME: Effector settings: built-in defaults, global file, explicit file, environment
// ABOUTME: JSON or YAML chosen by file extension; later sources override earlier ones

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds the merged configuration.
type Settings struct {
	SafeRoots         []string `json:"safe_roots,omitempty" yaml:"safe_roots,omitempty"`
	AllowedExts       []string `json:"allowed_exts,omitempty" yaml:"allowed_exts,omitempty"`
	MaxWriteBytes     int      `json:"max_write_bytes,omitempty" yaml:"max_write_bytes,omitempty"`
	MaxAppendBytes    int      `json:"max_append_bytes,omitempty" yaml:"max_append_bytes,omitempty"`
	MaxPatchBytes     int      `json:"max_patch_bytes,omitempty" yaml:"max_patch_bytes,omitempty"`
	FallbackReadLines int      `json:"fallback_read_lines,omitempty" yaml:"fallback_read_lines,omitempty"`
	CommandTimeoutMs  int      `json:"command_timeout_ms,omitempty" yaml:"command_timeout_ms,omitempty"`
	MaxCommandOutput  int      `json:"max_command_output,omitempty" yaml:"max_command_output,omitempty"`
	StateDir          string   `json:"state_dir,omitempty" yaml:"state_dir,omitempty"`
	AuditLog          string   `json:"audit_log,omitempty" yaml:"audit_log,omitempty"`
	LLMProvider       string   `json:"llm_provider,omitempty" yaml:"llm_provider,omitempty"`
	LLMModel          string   `json:"llm_model,omitempty" yaml:"llm_model,omitempty"`
	FuzzyCutoff       float64  `json:"fuzzy_cutoff,omitempty" yaml:"fuzzy_cutoff,omitempty"`

	// Approval rules, e.g. "write_file(docs/**)" or "run_cmd(git_push)".
	ApprovalAllow []string `json:"approval_allow,omitempty" yaml:"approval_allow,omitempty"`
	ApprovalDeny  []string `json:"approval_deny,omitempty" yaml:"approval_deny,omitempty"`
}

// DefaultAllowedExts is the text-file allow-list used when none is configured.
var DefaultAllowedExts = []string{
	".txt", ".md", ".json", ".yml", ".yaml", ".xml", ".properties", ".env",
	".java", ".kt", ".gradle", ".groovy",
	".js", ".ts", ".tsx", ".jsx", ".css", ".scss", ".html",
	".sql", ".sh", ".py", ".go",
}

// Defaults returns the built-in settings. SafeRoots is left empty: there
// is no sensible default sandbox.
func Defaults() *Settings {
	return &Settings{
		AllowedExts:       append([]string(nil), DefaultAllowedExts...),
		MaxWriteBytes:     300_000,
		MaxAppendBytes:    300_000,
		MaxPatchBytes:     300_000,
		FallbackReadLines: 500,
		CommandTimeoutMs:  120_000,
		MaxCommandOutput:  8000,
		StateDir:          ".pi-effector",
		LLMProvider:       "ollama",
		LLMModel:          "qwen2.5:7b-instruct",
		FuzzyCutoff:       0.55,
	}
}

// Load builds settings from defaults, the global config file, the optional
// explicit file, and the environment, in that order.
func Load(explicitPath string) (*Settings, error) {
	s := Defaults()

	if global := GlobalConfigFile(); global != "" {
		g, err := loadFile(global)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
		s = merge(s, g)
	}

	if explicitPath != "" {
		e, err := loadFile(explicitPath)
		if err != nil {
			return nil, fmt.Errorf("loading config %s: %w", explicitPath, err)
		}
		s = merge(s, e)
	}

	ApplyEnv(s)
	ResolveEnvVars(s)
	return s, nil
}

// loadFile reads Settings from a JSON or YAML file. Returns zero Settings
// if the file does not exist.
func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Settings{}, err
	}
	var s Settings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &s, nil
}

// merge overlays non-zero fields of over onto base.
func merge(base, over *Settings) *Settings {
	if base == nil {
		base = &Settings{}
	}
	if over == nil {
		return base
	}

	result := *base

	if len(over.SafeRoots) > 0 {
		result.SafeRoots = append([]string(nil), over.SafeRoots...)
	}
	if len(over.AllowedExts) > 0 {
		result.AllowedExts = append([]string(nil), over.AllowedExts...)
	}
	if over.MaxWriteBytes != 0 {
		result.MaxWriteBytes = over.MaxWriteBytes
	}
	if over.MaxAppendBytes != 0 {
		result.MaxAppendBytes = over.MaxAppendBytes
	}
	if over.MaxPatchBytes != 0 {
		result.MaxPatchBytes = over.MaxPatchBytes
	}
	if over.FallbackReadLines != 0 {
		result.FallbackReadLines = over.FallbackReadLines
	}
	if over.CommandTimeoutMs != 0 {
		result.CommandTimeoutMs = over.CommandTimeoutMs
	}
	if over.MaxCommandOutput != 0 {
		result.MaxCommandOutput = over.MaxCommandOutput
	}
	if over.StateDir != "" {
		result.StateDir = over.StateDir
	}
	if over.AuditLog != "" {
		result.AuditLog = over.AuditLog
	}
	if over.LLMProvider != "" {
		result.LLMProvider = over.LLMProvider
	}
	if over.LLMModel != "" {
		result.LLMModel = over.LLMModel
	}
	if over.FuzzyCutoff != 0 {
		result.FuzzyCutoff = over.FuzzyCutoff
	}
	// Rule lists accumulate across sources.
	result.ApprovalAllow = append(append([]string(nil), base.ApprovalAllow...), over.ApprovalAllow...)
	result.ApprovalDeny = append(append([]string(nil), base.ApprovalDeny...), over.ApprovalDeny...)

	return &result
}

// Validate checks required fields and makes safe roots absolute.
func (s *Settings) Validate() error {
	if len(s.SafeRoots) == 0 {
		return errors.New("at least one safe root is required (safe_roots, PI_EFFECTOR_SAFE_ROOTS, or --root)")
	}
	for i, r := range s.SafeRoots {
		abs, err := filepath.Abs(expandHome(r))
		if err != nil {
			return fmt.Errorf("safe root %q: %w", r, err)
		}
		s.SafeRoots[i] = abs
	}
	if s.FuzzyCutoff < 0 || s.FuzzyCutoff > 1 {
		return fmt.Errorf("fuzzy_cutoff must be within [0, 1], got %g", s.FuzzyCutoff)
	}
	if s.StateDir == "" || filepath.IsAbs(s.StateDir) {
		return fmt.Errorf("state_dir must be a relative directory name, got %q", s.StateDir)
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
