// Package helm drives the package-release subsystem through the external
// helm binary. The home directory the tool operates against is an explicit
// value threaded into the Client, exported to each child command through its
// environment, never set process-wide.
package helm

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"verifyctl/pkg/logging"
)

// Client executes release lifecycle commands against the helm binary.
type Client struct {
	bin  string
	home string
}

// NewClient creates a Client for the given binary and home directory. An
// empty binary name falls back to "helm" on PATH; an empty home leaves the
// tool's own default in place.
func NewClient(bin, home string) *Client {
	if bin == "" {
		bin = "helm"
	}
	return &Client{bin: bin, home: home}
}

// DiscoverHome queries the tool for its home directory via the `home`
// subcommand, for callers that did not configure one explicitly.
func DiscoverHome(bin string) (string, error) {
	if bin == "" {
		bin = "helm"
	}
	out, err := exec.Command(bin, "home").Output()
	if err != nil {
		return "", fmt.Errorf("failed to execute '%s home': %w", bin, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Client) command(args ...string) *exec.Cmd {
	cmd := exec.Command(c.bin, args...)
	if c.home != "" {
		cmd.Env = append(os.Environ(), "HELM_HOME="+c.home)
	}
	return cmd
}

// Init runs the idempotent setup of the release subsystem. Failure here is
// fatal for the scenario and must be propagated.
func (c *Client) Init() error {
	logging.Debug("helm", "running %s init", c.bin)
	out, err := c.command("init").CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to execute '%s init': %w. Output: %s",
			c.bin, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Status returns the tool's output for the named release. It never returns
// an error: when the underlying command fails, its own error output is the
// result, so callers can still pattern-match a failed or not-yet-existing
// release without the check itself aborting the scenario.
func (c *Client) Status(release string) string {
	out, err := c.command("status", release).CombinedOutput()
	if err != nil {
		logging.Debug("helm", "status of release %s failed: %v", release, err)
	}
	return string(out)
}

// Delete removes the named release, best effort. Failures are logged only.
func (c *Client) Delete(release string) {
	out, err := c.command("delete", "--purge", release).CombinedOutput()
	if err != nil {
		logging.Debug("helm", "best-effort delete of release %s failed: %v (%s)",
			release, err, strings.TrimSpace(string(out)))
	}
}

// RepoAdd registers a chart repository, best effort. A repository that is
// already registered or temporarily unreachable should not abort the
// scenario; the later apply will fail if the repo is genuinely required and
// missing.
func (c *Client) RepoAdd(name, url string) error {
	out, err := c.command("repo", "add", name, url).CombinedOutput()
	if err != nil {
		logging.Warn("helm", "repo add %s %s failed: %v (%s)",
			name, url, err, strings.TrimSpace(string(out)))
	}
	return nil
}
