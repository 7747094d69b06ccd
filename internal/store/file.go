package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// reportsSchema describes reports.json. Nullable fields must be present.
const reportsSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["case_no", "date", "time", "location", "report_text",
                 "injury_severity", "injury_region", "cyclist_dob", "parse_status"],
    "properties": {
      "case_no":         {"type": "string", "minLength": 1},
      "filename":        {"type": "string"},
      "date":            {"type": ["string", "null"], "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
      "time":            {"type": ["string", "null"], "pattern": "^\\d{2}:\\d{2}$"},
      "location":        {"type": ["string", "null"]},
      "report_text":     {"type": "string"},
      "injury_severity": {"type": ["integer", "null"], "minimum": 1, "maximum": 5},
      "injury_region":   {"type": ["string", "null"], "pattern": "^[a-z_]+$"},
      "cyclist_dob":     {"type": ["string", "null"], "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
      "cyclist_initials": {"type": ["string", "null"], "pattern": "^[A-Z]+$"},
      "cyclist_gender":  {"enum": ["M", "F", null]},
      "hit_and_run":     {"type": "boolean"},
      "parse_status":    {"enum": ["complete", "partial", "unparseable"]},
      "unparsed_fields": {"type": "array", "items": {"type": "string"}},
      "problems":        {"type": "array", "items": {"type": "string"}}
    }
  }
}`

var compiledReportsSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("reports.schema.json", bytes.NewReader([]byte(reportsSchema))); err != nil {
		panic(err)
	}
	return compiler.MustCompile("reports.schema.json")
}()

func validateReports(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := compiledReportsSchema.Validate(v); err != nil {
		return fmt.Errorf("does not match schema: %w", err)
	}
	return nil
}

// readFile returns nil data for a missing file
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

func loadJSON(path string, v any) error {
	data, err := readFile(path)
	if err != nil || data == nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON writes v next to path and renames it into place, so readers
// see either the old or the new file
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
