package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/McElyea/orket-kernel/internal/kernel"
)

// printJSON writes v to stdout as indented JSON, for --json output mode.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSONFile decodes path's contents into out.
func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// logrusFields projects a TurnResult's headline fields for structured CLI logging.
func logrusFields(r kernel.TurnResult) logrus.Fields {
	return logrus.Fields{
		"run_id":   r.RunID,
		"turn_id":  r.TurnID,
		"outcome":  r.Outcome,
		"stage":    r.Stage,
		"errors":   r.Errors,
		"warnings": r.Warnings,
	}
}
