package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

type FileReadParams struct {
	Path string `json:"path" jsonschema:"required,description=Path of the file to read"`
}

func RunFileRead(ctx context.Context, argsJSON string) (string, bool, error) {
	var p FileReadParams
	if err := json.Unmarshal([]byte(argsJSON), &p); err != nil {
		return fmt.Sprintf("invalid arguments: %v", err), true, nil
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Sprintf("failed to read %s: %v", p.Path, err), true, nil
	}
	return string(data), false, nil
}

type FileWriteParams struct {
	Path    string `json:"path" jsonschema:"required,description=Path of the file to write"`
	Content string `json:"content" jsonschema:"required,description=Full content to write"`
}

func RunFileWrite(ctx context.Context, argsJSON string) (string, bool, error) {
	var p FileWriteParams
	if err := json.Unmarshal([]byte(argsJSON), &p); err != nil {
		return fmt.Sprintf("invalid arguments: %v", err), true, nil
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Sprintf("failed to create directory for %s: %v", p.Path, err), true, nil
	}
	if err := os.WriteFile(p.Path, []byte(p.Content), 0o644); err != nil {
		return fmt.Sprintf("failed to write %s: %v", p.Path, err), true, nil
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.Path), false, nil
}

type GlobParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Doublestar glob pattern, e.g. **/*.go"`
	Root    string `json:"root,omitempty" jsonschema:"description=Directory to glob from; defaults to the current directory"`
}

// RunGlob walks Root honoring .gitignore the way a developer's editor would,
// then matches doublestar.Match against Pattern.
func RunGlob(ctx context.Context, argsJSON string) (string, bool, error) {
	var p GlobParams
	if err := json.Unmarshal([]byte(argsJSON), &p); err != nil {
		return fmt.Sprintf("invalid arguments: %v", err), true, nil
	}
	root := p.Root
	if root == "" {
		root = "."
	}

	ignorer, _ := gitignore.NewRepository(root)

	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if ignorer != nil {
			if match := ignorer.Match(path); match != nil && match.Ignore() {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() {
			return nil
		}
		ok, matchErr := doublestar.Match(p.Pattern, filepath.ToSlash(rel))
		if matchErr == nil && ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Sprintf("glob failed: %v", err), true, nil
	}

	out, _ := json.Marshal(matches)
	return string(out), false, nil
}

type GrepParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Regular expression to search for"`
	Path    string `json:"path" jsonschema:"required,description=File or directory to search"`
}

// RunGrep searches Path (recursively if it's a directory) for lines
// matching Pattern.
func RunGrep(ctx context.Context, argsJSON string) (string, bool, error) {
	var p GrepParams
	if err := json.Unmarshal([]byte(argsJSON), &p); err != nil {
		return fmt.Sprintf("invalid arguments: %v", err), true, nil
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return fmt.Sprintf("invalid pattern: %v", err), true, nil
	}

	var matches []string
	walkErr := filepath.WalkDir(p.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				matches = append(matches, fmt.Sprintf("%s:%d:%s", path, lineNo, strings.TrimSpace(scanner.Text())))
			}
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Sprintf("grep failed: %v", walkErr), true, nil
	}

	out, _ := json.Marshal(matches)
	return string(out), false, nil
}
