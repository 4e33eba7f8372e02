// ABOUTME: Post-write syntax checkers keyed by file extension
// ABOUTME: In-process parsers for Go/JSON/YAML/XML; external interpreters for Python/shell/JS when installed

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mauromedda/pi-effector/internal/log"
)

const checkerTimeout = 30 * time.Second

// Checker validates the file at path. A nil return means the file is valid.
type Checker func(ctx context.Context, path string) error

// Validators maps lower-case extensions to syntax checkers.
type Validators struct {
	byExt map[string]Checker
}

// DefaultValidators returns the built-in checker set.
func DefaultValidators() *Validators {
	v := &Validators{}
	v.Register(".go", checkGo)
	v.Register(".json", checkJSON)
	v.Register(".yml", checkYAML)
	v.Register(".yaml", checkYAML)
	v.Register(".xml", checkXML)
	v.Register(".py", externalChecker("python3", "-c",
		"import ast,sys; ast.parse(open(sys.argv[1], encoding='utf-8').read(), sys.argv[1])"))
	v.Register(".sh", externalChecker("bash", "-n"))
	v.Register(".js", externalChecker("node", "--check"))
	return v
}

// Register installs c for ext, replacing any previous checker.
func (v *Validators) Register(ext string, c Checker) {
	if v.byExt == nil {
		v.byExt = make(map[string]Checker)
	}
	v.byExt[strings.ToLower(ext)] = c
}

// Has reports whether a checker exists for path's extension.
func (v *Validators) Has(path string) bool {
	_, ok := v.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Check runs the checker for path, if any.
func (v *Validators) Check(ctx context.Context, path string) error {
	c, ok := v.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil
	}
	return c(ctx, path)
}

func checkGo(_ context.Context, path string) error {
	_, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.AllErrors)
	return err
}

func checkJSON(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty JSON document")
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func checkYAML(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var n yaml.Node
		err := dec.Decode(&n)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid YAML: %w", err)
		}
	}
}

func checkXML(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid XML: %w", err)
		}
	}
}

// externalChecker runs `bin args... path`. A missing interpreter skips the check.
func externalChecker(bin string, args ...string) Checker {
	return func(ctx context.Context, path string) error {
		binPath, err := exec.LookPath(bin)
		if err != nil {
			log.Debug("skipping %s check for %s: %v", bin, path, err)
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, checkerTimeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, binPath, append(append([]string(nil), args...), path)...)
		out, err := cmd.CombinedOutput()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s check timed out: %w", bin, ctx.Err())
		}
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return errors.New(msg)
	}
}
