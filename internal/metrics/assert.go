package metrics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"verifyctl/internal/poll"
)

// Counter names exposed by the controller-under-test.
const (
	eventsMetric  = "releases_events_total"
	managedMetric = "releases_total"
	createdMetric = "releases_create_total"
	deletedMetric = "releases_delete_total"
	updatedMetric = "releases_update_total"
)

// Expectation describes the counter values the controller must converge to
// after a mutation.
type Expectation struct {
	// Events is the total number of events the controller must have observed.
	// It gates all other assertions: only a snapshot whose event total
	// matches exactly is evaluated further.
	Events int `yaml:"events"`
	// Managed is the number of resources the controller currently manages.
	Managed int `yaml:"managed"`
	// Created is the cumulative number of created resources.
	Created int `yaml:"created"`
	// Deleted is the cumulative number of deleted resources.
	Deleted int `yaml:"deleted"`
	// Updated is the cumulative number of updated resources.
	Updated int `yaml:"updated"`
}

// hasLine reports whether the snapshot contains the exact line.
func hasLine(snapshot, line string) bool {
	for _, l := range strings.Split(snapshot, "\n") {
		if l == line {
			return true
		}
	}
	return false
}

// WaitForCounts polls the metrics endpoint until the event counter line
// "<events metric> <N>" appears, then asserts the managed/created/deleted/
// updated totals against that same snapshot. Evaluating everything against
// one snapshot avoids read skew where different counters are read at
// different points of a still-converging system.
func (c *Client) WaitForCounts(want Expectation) error {
	gate := fmt.Sprintf("%s %d", eventsMetric, want.Events)

	snapshot, err := poll.Until(c.snapshot, func(text string) bool {
		return hasLine(text, gate)
	}, c.attempts, c.interval)
	if err != nil {
		return fmt.Errorf("event total never reached %d: %w", want.Events, err)
	}

	checks := []struct {
		name string
		want int
	}{
		{managedMetric, want.Managed},
		{createdMetric, want.Created},
		{deletedMetric, want.Deleted},
		{updatedMetric, want.Updated},
	}
	for _, check := range checks {
		line := fmt.Sprintf("%s %d", check.name, check.want)
		if !hasLine(snapshot, line) {
			return fmt.Errorf("expected %q after %d events; snapshot:\n%s", line, want.Events, snapshot)
		}
	}
	return nil
}

// Timestamp fetches one snapshot and returns the current value of the line
// whose metric name matches the pattern. A metric the controller has not
// recorded yet reads as zero, so baselines work against a fresh process.
func (c *Client) Timestamp(metric string) (float64, error) {
	re, err := regexp.Compile("^" + metric)
	if err != nil {
		return 0, fmt.Errorf("invalid metric pattern %q: %w", metric, err)
	}

	snapshot, err := c.snapshot()
	if err != nil {
		return 0, fmt.Errorf("failed to read baseline for %s: %w", metric, err)
	}

	for _, line := range strings.Split(snapshot, "\n") {
		if !re.MatchString(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse value of %q: %w", line, err)
		}
		return value, nil
	}
	return 0, nil
}

// WaitForTimestampAfter polls until the event counter reaches events, then
// locates the line whose name matches the metric pattern and asserts its
// value is strictly greater than the baseline captured before the mutating
// action. This validates that the controller's recorded action time reflects
// the just-performed mutation rather than a stale prior value.
func (c *Client) WaitForTimestampAfter(metric string, baseline float64, events int) error {
	re, err := regexp.Compile("^" + metric)
	if err != nil {
		return fmt.Errorf("invalid metric pattern %q: %w", metric, err)
	}

	gate := fmt.Sprintf("%s %d", eventsMetric, events)
	snapshot, pollErr := poll.Until(c.snapshot, func(text string) bool {
		return hasLine(text, gate)
	}, c.attempts, c.interval)
	if pollErr != nil {
		return fmt.Errorf("event total never reached %d: %w", events, pollErr)
	}

	for _, line := range strings.Split(snapshot, "\n") {
		if !re.MatchString(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("failed to parse value of %q: %w", line, err)
		}
		if value <= baseline {
			return fmt.Errorf("%s is %v, expected greater than baseline %v", metric, value, baseline)
		}
		return nil
	}
	return fmt.Errorf("metric %s not found; snapshot:\n%s", metric, snapshot)
}
