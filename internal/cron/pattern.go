package cron

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/sessionbridge/orchestrator/internal/orcherr"
)

// parsePattern validates and compiles a standard 5-field cron pattern
// (spec.md §4.5). robfig/cron accepts */0 as a (useless) zero step
// without complaint, so step values are validated explicitly first.
func parsePattern(pattern string) (cron.Schedule, error) {
	if err := validateSteps(pattern); err != nil {
		return nil, err
	}
	sched, err := cron.ParseStandard(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orcherr.ErrInvalidPattern, err)
	}
	return sched, nil
}

func validateSteps(pattern string) error {
	fields := strings.Fields(pattern)
	if len(fields) != 5 {
		return fmt.Errorf("%w: expected 5 fields, got %d", orcherr.ErrInvalidPattern, len(fields))
	}
	for _, field := range fields {
		for _, item := range strings.Split(field, ",") {
			idx := strings.Index(item, "/")
			if idx < 0 {
				continue
			}
			step, err := strconv.Atoi(item[idx+1:])
			if err != nil {
				return fmt.Errorf("%w: bad step in %q", orcherr.ErrInvalidPattern, item)
			}
			if step <= 0 {
				return fmt.Errorf("%w: step must be >= 1 in %q", orcherr.ErrInvalidPattern, item)
			}
		}
	}
	return nil
}
