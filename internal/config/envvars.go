// ABOUTME: Environment overrides and ${VAR} expansion in config path fields
// ABOUTME: PI_EFFECTOR_SAFE_ROOTS is an os.PathListSeparator list; unset ${VAR}s become empty

package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvSafeRoots = "PI_EFFECTOR_SAFE_ROOTS"
	EnvAuditLog  = "PI_EFFECTOR_AUDIT_LOG"
)

var envVarPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// ApplyEnv overrides settings from the process environment.
func ApplyEnv(s *Settings) {
	if v := strings.TrimSpace(os.Getenv(EnvSafeRoots)); v != "" {
		var roots []string
		for _, r := range filepath.SplitList(v) {
			if r = strings.TrimSpace(r); r != "" {
				roots = append(roots, r)
			}
		}
		if len(roots) > 0 {
			s.SafeRoots = roots
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuditLog)); v != "" {
		s.AuditLog = v
	}
}

// ResolveEnvVars expands ${VAR} patterns in path fields of Settings.
func ResolveEnvVars(s *Settings) {
	for i, r := range s.SafeRoots {
		s.SafeRoots[i] = expandEnv(r)
	}
	s.AuditLog = expandEnv(s.AuditLog)
	s.StateDir = expandEnv(s.StateDir)
	s.LLMModel = expandEnv(s.LLMModel)
}

// expandEnv replaces ${VAR} with os.Getenv(VAR). Unset vars become "".
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
