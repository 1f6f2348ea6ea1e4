// Package heartbeat reads the workspace's HEARTBEAT.md and turns the tasks
// it declares into cron job specs.
package heartbeat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aatumaykin/nexbotd/internal/cron"
)

// IDPrefix prefixes job ids derived from heartbeat tasks.
const IDPrefix = "heartbeat_"

// Task is one task declared in HEARTBEAT.md.
//
// Expected format:
//
//	# Heartbeat Tasks
//
//	## Periodic Reviews
//
//	### Daily Standup
//	- Schedule: "0 9 * * *"
//	- Command: "nexbot agent --message 'daily standup'"
//	- Task: "Review daily progress"
type Task struct {
	Name     string
	Schedule string
	Command  string
	Task     string
}

var (
	quotedValue = regexp.MustCompile(`"([^"]*)"`)
	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)
)

// Parse extracts tasks from markdown content. Tasks with missing fields are
// returned as-is; Validate rejects them.
func Parse(content string) []Task {
	var tasks []Task
	for _, section := range splitBy(content, "### ") {
		task, ok := parseTaskSection(section)
		if ok {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// Validate checks that a task has a name, a command and a schedule in the
// daemon's cron grammar.
func Validate(task Task) error {
	if task.Name == "" {
		return errors.New("task name cannot be empty")
	}
	if task.Command == "" {
		return fmt.Errorf("task %q: command cannot be empty", task.Name)
	}
	if _, err := cron.Parse(task.Schedule); err != nil {
		return fmt.Errorf("task %q: %w", task.Name, err)
	}
	return nil
}

// Spec converts a task into a job spec with a stable id derived from its name.
func (t Task) Spec() cron.JobSpec {
	return cron.JobSpec{
		ID:          IDPrefix + slug(t.Name),
		Name:        t.Name,
		Schedule:    t.Schedule,
		Command:     t.Command,
		Description: t.Task,
	}
}

// splitBy splits content into chunks, each starting at a line with the
// given header prefix. Text before the first header is dropped.
func splitBy(content, prefix string) []string {
	var chunks []string
	var current []string
	inChunk := false

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			if inChunk {
				chunks = append(chunks, strings.Join(current, "\n"))
			}
			current = []string{line}
			inChunk = true
			continue
		}
		// A level 2 header closes the current task.
		if strings.HasPrefix(strings.TrimSpace(line), "## ") {
			if inChunk {
				chunks = append(chunks, strings.Join(current, "\n"))
			}
			current, inChunk = nil, false
			continue
		}
		if inChunk {
			current = append(current, line)
		}
	}
	if inChunk {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

func parseTaskSection(section string) (Task, bool) {
	lines := strings.Split(section, "\n")
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[0]), "### "))
	if name == "" {
		return Task{}, false
	}

	task := Task{Name: name}
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "- Schedule:"):
			task.Schedule = extractValue(trimmed)
		case strings.HasPrefix(trimmed, "- Command:"):
			task.Command = extractValue(trimmed)
		case strings.HasPrefix(trimmed, "- Task:"):
			task.Task = extractValue(trimmed)
		}
	}
	return task, true
}

// extractValue returns the first quoted string on the line, or everything
// after the first colon when there are no quotes.
func extractValue(line string) string {
	if m := quotedValue.FindStringSubmatch(line); len(m) > 1 {
		return m[1]
	}
	if _, after, ok := strings.Cut(line, ":"); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func slug(name string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}
