// Package kubectl invokes the external kubectl binary against declarative
// fixture files. The harness never parses kubectl's output; success is
// exit-code based.
package kubectl

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"verifyctl/pkg/logging"
)

// Runner mutates the watched system by applying and deleting fixture files.
type Runner struct {
	bin string
}

// NewRunner creates a Runner for the given binary. An empty binary name
// falls back to "kubectl" on PATH.
func NewRunner(bin string) *Runner {
	if bin == "" {
		bin = "kubectl"
	}
	return &Runner{bin: bin}
}

func (r *Runner) run(verb, path string) error {
	cmd := exec.Command(r.bin, verb, "-f", path)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		// Include the tool's stderr in the error message for better diagnostics
		return fmt.Errorf("failed to execute '%s %s -f %s': %w. Stderr: %s",
			r.bin, verb, path, err, strings.TrimSpace(stderrBuf.String()))
	}
	return nil
}

// Apply applies the fixture file. A failed apply is a hard failure and must
// be propagated to the caller.
func (r *Runner) Apply(path string) error {
	logging.Debug("kubectl", "applying %s", path)
	return r.run("apply", path)
}

// Delete deletes the resources in the fixture file. In best-effort mode
// (strict=false) a failure is logged and swallowed: deleting a resource that
// does not exist yet is expected during preparation and cleanup. With
// strict=true the failure propagates.
func (r *Runner) Delete(path string, strict bool) error {
	logging.Debug("kubectl", "deleting %s (strict=%t)", path, strict)
	err := r.run("delete", path)
	if err != nil && !strict {
		logging.Debug("kubectl", "best-effort delete of %s failed: %v", path, err)
		return nil
	}
	return err
}
