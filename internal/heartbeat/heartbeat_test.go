package heartbeat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexbotd/internal/cron"
)

const sample = `# Heartbeat Tasks

Intro text is ignored.

## Periodic Reviews

### Daily Standup
- Schedule: "0 9 * * *"
- Command: "echo standup"
- Task: "Review daily progress, check for blocked tasks"

### Weekly Summary
- Schedule: 0 17 * * 5
- Command: echo summary

## Maintenance

### Compact Memory
- Schedule: "*/5 * * * *"
- Command: "echo compact"

### No Command
- Schedule: "0 3 * * *"
`

func TestParse(t *testing.T) {
	tasks := Parse(sample)
	require.Len(t, tasks, 4)

	assert.Equal(t, Task{
		Name:     "Daily Standup",
		Schedule: "0 9 * * *",
		Command:  "echo standup",
		Task:     "Review daily progress, check for blocked tasks",
	}, tasks[0])
	assert.Equal(t, "0 17 * * 5", tasks[1].Schedule)
	assert.Equal(t, "echo summary", tasks[1].Command)
	assert.Equal(t, "Compact Memory", tasks[2].Name)
	assert.Empty(t, tasks[3].Command)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("# Heartbeat Tasks\n\n## Nothing here\n"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr error
	}{
		{"valid", Task{Name: "a", Schedule: "0 9 * * *", Command: "true"}, nil},
		{"step syntax", Task{Name: "a", Schedule: "*/5 * * * *", Command: "true"}, cron.ErrInvalidExpression},
		{"six fields", Task{Name: "a", Schedule: "0 0 9 * * *", Command: "true"}, cron.ErrInvalidExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.task)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Error(t, Validate(Task{Schedule: "0 9 * * *", Command: "true"}))
	assert.Error(t, Validate(Task{Name: "a", Schedule: "0 9 * * *"}))
}

func TestTask_Spec(t *testing.T) {
	spec := Task{Name: "Daily Standup!", Schedule: "0 9 * * *", Command: "echo hi", Task: "standup"}.Spec()

	assert.Equal(t, cron.JobSpec{
		ID:          "heartbeat_daily_standup",
		Name:        "Daily Standup!",
		Schedule:    "0 9 * * *",
		Command:     "echo hi",
		Description: "standup",
	}, spec)
}

func TestLoader_LoadJobs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(sample), 0644))

	specs, err := NewLoader(dir, nil).LoadJobs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "heartbeat_daily_standup", specs[0].ID)
	assert.Equal(t, "heartbeat_weekly_summary", specs[1].ID)
}

func TestLoader_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	content := "### Ping\n- Schedule: \"0 * * * *\"\n- Command: \"true\"\n### ping\n- Schedule: \"5 * * * *\"\n- Command: \"true\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))

	specs, err := NewLoader(dir, nil).LoadJobs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "0 * * * *", specs[0].Schedule)
}

func TestLoader_MissingFile(t *testing.T) {
	l := NewLoader(t.TempDir(), nil)

	specs, err := l.LoadJobs()
	require.NoError(t, err)
	assert.Empty(t, specs)
	assert.Equal(t, FileName, filepath.Base(l.Path()))
}
