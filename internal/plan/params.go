// ABOUTME: Type-safe accessors for step parameters decoded from JSON
// ABOUTME: Numbers arrive as float64; strings may stand in for numbers and booleans

package plan

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mauromedda/pi-effector/internal/types"
)

// StringParam extracts an optional string parameter with a default value.
func (s Step) StringParam(key, def string) string {
	v, ok := s.Params[key]
	if !ok || v == nil {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

// OptStringParam returns the parameter and whether it was a non-empty string.
func (s Step) OptStringParam(key string) (string, bool) {
	str := s.StringParam(key, "")
	return str, str != ""
}

// IntParam extracts an optional integer parameter with a default value.
func (s Step) IntParam(key string, def int) int {
	v, ok := s.Params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n > float64(math.MaxInt) || n < float64(math.MinInt) {
			return def
		}
		return int(n)
	case int:
		return n
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// BoolParam extracts an optional boolean parameter with a default value.
func (s Step) BoolParam(key string, def bool) bool {
	v, ok := s.Params[key]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return def
}

// Args extracts the run_cmd argument list. Missing or null means none;
// any non-string element fails invalid_arguments.
func (s Step) Args() ([]string, error) {
	v, ok := s.Params["args"]
	if !ok || v == nil {
		return nil, nil
	}
	switch raw := v.(type) {
	case []string:
		return raw, nil
	case []any:
		out := make([]string, 0, len(raw))
		for i, elem := range raw {
			str, ok := elem.(string)
			if !ok {
				return nil, types.Errorf(types.KindInvalidArguments, "args[%d] must be a string, got %T", i, elem)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, types.Errorf(types.KindInvalidArguments, "args must be a list of strings, got %T", v)
	}
}

// Summary renders the step for prompts and logs.
func (s Step) Summary() string {
	var parts []string
	for _, k := range []string{"workdir", "path", "src", "dst", "new_name", "op", "cmd_key"} {
		if v, ok := s.OptStringParam(k); ok {
			parts = append(parts, k+"="+v)
		}
	}
	if args, err := s.Args(); err == nil && len(args) > 0 {
		parts = append(parts, fmt.Sprintf("args=%q", args))
	}
	return string(s.Action) + " " + strings.Join(parts, " ")
}
