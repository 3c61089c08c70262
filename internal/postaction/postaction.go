// Package postaction runs the user configured actions after a download
// completes: reveal, open, extract and a shell script. Every action is
// launched detached; the runner never waits for it.
package postaction

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/raaddl/raad/pkg/logger"
)

var ErrNoExtractor = errors.New("no extractor for file type")

// Actions selects what to run.
type Actions struct {
	RevealFolder bool
	OpenFile     bool
	Extract      bool
	// Script may reference {file} and {dir}.
	Script string
}

// Runner launches actions.
type Runner struct {
	log   logger.Logger
	goos  string
	start func(name string, args ...string) error
}

func NewRunner(l logger.Logger) *Runner {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Runner{log: l, goos: runtime.GOOS, start: startDetached}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Run launches the selected actions for the file at path and returns the
// names of those that started. A failing action does not stop the others;
// the first error is returned.
func (r *Runner) Run(a Actions, path string) (ran []string, err error) {
	dir := filepath.Dir(path)
	note := func(name string, e error) {
		if e != nil {
			r.log.Warning("post action %s for %s: %v", name, path, e)
			if err == nil {
				err = fmt.Errorf("%s: %w", name, e)
			}
			return
		}
		ran = append(ran, name)
	}
	if a.RevealFolder {
		note("reveal", r.reveal(path, dir))
	}
	if a.OpenFile {
		note("open", r.open(path))
	}
	if a.Extract {
		note("extract", r.extract(path, dir))
	}
	if script := strings.TrimSpace(a.Script); script != "" {
		note("script", r.script(Expand(script, path)))
	}
	return ran, err
}

func (r *Runner) open(target string) error {
	switch r.goos {
	case "darwin":
		return r.start("open", target)
	case "windows":
		return r.start("cmd", "/C", "start", "", target)
	default:
		return r.start("xdg-open", target)
	}
}

func (r *Runner) reveal(path, dir string) error {
	switch r.goos {
	case "darwin":
		return r.start("open", "-R", path)
	case "windows":
		return r.start("explorer", "/select,"+filepath.FromSlash(path))
	default:
		return r.open(dir)
	}
}

func (r *Runner) extract(path, dir string) error {
	if r.goos == "windows" {
		return ErrNoExtractor
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return r.start("unzip", "-o", path, "-d", dir)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".tar.bz2"),
		strings.HasSuffix(lower, ".tar"):
		return r.start("tar", "-xf", path, "-C", dir)
	}
	return ErrNoExtractor
}

// Expand substitutes {file} and {dir} in a script.
func Expand(script, path string) string {
	return strings.NewReplacer("{file}", path, "{dir}", filepath.Dir(path)).Replace(script)
}

func (r *Runner) script(resolved string) error {
	if r.goos == "windows" {
		return r.start("cmd", "/C", resolved)
	}
	return r.start("/bin/sh", "-c", resolved)
}
