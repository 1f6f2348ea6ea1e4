package cron

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/nexbotd/internal/logger"
)

// DefaultJobsFilename is the job list file name inside the cron directory.
const DefaultJobsFilename = "jobs.jsonl"

// Storage persists job specs on disk. The format follows the file
// extension: ".yaml"/".yml" hold a YAML list, anything else is JSON Lines
// with one spec per line.
type Storage struct {
	filePath string
	logger   *logger.Logger
}

// NewStorage creates a Storage for filePath.
func NewStorage(filePath string, log *logger.Logger) *Storage {
	if log == nil {
		log = logger.Discard()
	}
	return &Storage{filePath: filePath, logger: log}
}

// Path returns the backing file path.
func (s *Storage) Path() string {
	return s.filePath
}

func (s *Storage) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.filePath))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads all specs. A missing file yields an empty list.
func (s *Storage) Load() ([]JobSpec, error) {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return []JobSpec{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file %s: %w", s.filePath, err)
	}

	if s.isYAML() {
		var specs []JobSpec
		if err := yaml.Unmarshal(data, &specs); err != nil {
			return nil, fmt.Errorf("failed to parse jobs file %s: %w", s.filePath, err)
		}
		if specs == nil {
			specs = []JobSpec{}
		}
		return specs, nil
	}

	specs := []JobSpec{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var spec JobSpec
		if err := json.Unmarshal([]byte(line), &spec); err != nil {
			s.logger.Error("failed to unmarshal job line", err,
				logger.Field{Key: "file", Value: s.filePath},
				logger.Field{Key: "line", Value: lineNum})
			continue
		}
		specs = append(specs, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs file %s: %w", s.filePath, err)
	}

	return specs, nil
}

// LoadJobs implements the daemon's job source.
func (s *Storage) LoadJobs() ([]JobSpec, error) {
	return s.Load()
}

// Save writes specs atomically through a temporary file and rename,
// replacing the whole file.
func (s *Storage) Save(specs []JobSpec) error {
	doc := make([]entry, len(specs))
	for i := range specs {
		doc[i] = entry{spec: &specs[i]}
	}
	return s.write(doc)
}

// entry is one line of a JSON Lines file: a job spec, or a comment, blank
// or unparsable line that is written back verbatim.
type entry struct {
	raw  string
	spec *JobSpec
}

// readDocument loads the file for an edit. YAML files are decoded as a
// whole; a file that does not parse is an error rather than a partial list.
func (s *Storage) readDocument() ([]entry, error) {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file %s: %w", s.filePath, err)
	}

	if s.isYAML() {
		var specs []JobSpec
		if err := yaml.Unmarshal(data, &specs); err != nil {
			return nil, fmt.Errorf("failed to parse jobs file %s: %w", s.filePath, err)
		}
		doc := make([]entry, len(specs))
		for i := range specs {
			doc[i] = entry{spec: &specs[i]}
		}
		return doc, nil
	}

	var doc []entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			doc = append(doc, entry{raw: raw})
			continue
		}
		var spec JobSpec
		if err := json.Unmarshal([]byte(line), &spec); err != nil {
			doc = append(doc, entry{raw: raw})
			continue
		}
		doc = append(doc, entry{spec: &spec})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs file %s: %w", s.filePath, err)
	}
	return doc, nil
}

func (s *Storage) write(doc []entry) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create jobs directory: %w", err)
	}

	var buf bytes.Buffer
	count := 0
	if s.isYAML() {
		specs := make([]JobSpec, 0, len(doc))
		for _, e := range doc {
			if e.spec != nil {
				specs = append(specs, *e.spec)
			}
		}
		count = len(specs)
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(specs); err != nil {
			return fmt.Errorf("failed to encode jobs: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode jobs: %w", err)
		}
	} else {
		for _, e := range doc {
			if e.spec == nil {
				buf.WriteString(e.raw)
				buf.WriteByte('\n')
				continue
			}
			line, err := json.Marshal(e.spec)
			if err != nil {
				return fmt.Errorf("failed to marshal job %s: %w", e.spec.ID, err)
			}
			buf.Write(line)
			buf.WriteByte('\n')
			count++
		}
	}

	tmpPath := s.filePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary jobs file: %w", err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		return fmt.Errorf("failed to write temporary jobs file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync temporary jobs file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temporary jobs file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("failed to rename jobs file: %w", err)
	}

	s.logger.Debug("jobs saved to storage",
		logger.Field{Key: "count", Value: count},
		logger.Field{Key: "file", Value: s.filePath})
	return nil
}

// Upsert validates spec and adds or replaces it by id. It returns the stored
// spec, with a generated id when spec.ID was empty. Other lines of a JSON
// Lines file, including comments and lines that do not parse, are kept.
func (s *Storage) Upsert(spec JobSpec) (JobSpec, error) {
	if _, err := Parse(spec.Schedule); err != nil {
		return JobSpec{}, err
	}
	if strings.TrimSpace(spec.ID) == "" {
		spec.ID = GenerateJobID()
	}

	doc, err := s.readDocument()
	if err != nil {
		return JobSpec{}, err
	}

	replaced := false
	for i := range doc {
		if doc[i].spec != nil && doc[i].spec.ID == spec.ID {
			stored := spec
			doc[i].spec = &stored
			replaced = true
			break
		}
	}
	if !replaced {
		stored := spec
		doc = append(doc, entry{spec: &stored})
	}

	if err := s.write(doc); err != nil {
		return JobSpec{}, err
	}
	return spec, nil
}

// Remove deletes a spec by id.
func (s *Storage) Remove(id string) error {
	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	kept := make([]entry, 0, len(doc))
	for _, e := range doc {
		if e.spec != nil && e.spec.ID == id {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(doc) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.write(kept)
}

// SetDisabled flips the disabled flag of a stored spec.
func (s *Storage) SetDisabled(id string, disabled bool) error {
	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	for _, e := range doc {
		if e.spec != nil && e.spec.ID == id {
			e.spec.Disabled = disabled
			return s.write(doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
