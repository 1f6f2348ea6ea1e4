package constants

// Package messages contains the text printed by the nexbotd command line.

// Config messages
const (
	// MsgConfigLoadError is the error message when configuration loading fails.
	MsgConfigLoadError = "❌ Failed to load configuration: %v\n"

	// MsgConfigValidationError is the message when configuration validation fails.
	MsgConfigValidationError = "❌ Configuration validation failed:\n"

	// MsgConfigValid is the message when configuration is successfully loaded and validated.
	MsgConfigValid = "✅ Configuration is valid\n"

	// MsgConfigValidatePrefix is the prefix for configuration validation errors.
	MsgConfigValidatePrefix = "  - %v\n"
)

// Daemon control messages
const (
	// MsgDaemonStarted is printed by the launching process after detaching.
	MsgDaemonStarted = "✅ nexbotd started (pid %d)\n"

	// MsgDaemonStartPending is printed when the PID file did not appear in time.
	MsgDaemonStartPending = "⏳ nexbotd detached; PID file %s not written yet, check the log\n"

	// MsgDaemonNotRunning is printed when no live daemon owns the PID file.
	MsgDaemonNotRunning = "nexbotd is not running\n"

	// MsgDaemonStopped is printed after the daemon process exited.
	MsgDaemonStopped = "✅ nexbotd stopped (pid %d)\n"

	// MsgSignalSent is printed after a control signal was delivered.
	MsgSignalSent = "✅ Sent %s to nexbotd (pid %d)\n"
)

// Error messages
const (
	// MsgErrorLoadingJobs is the error message when jobs file cannot be loaded.
	MsgErrorLoadingJobs = "Error loading jobs: %v\n"

	// MsgErrorSavingJobs is the error message when jobs cannot be saved.
	MsgErrorSavingJobs = "Error saving job: %v\n"

	// MsgErrorJobNotFound is the error message when a specific job is not found.
	MsgErrorJobNotFound = "Error: Job '%s' not found\n"
)

// Job messages
const (
	// MsgJobAdded is the success message when a job is added.
	MsgJobAdded = "✅ Job added successfully\n"

	// MsgJobID is the label for the job ID field.
	MsgJobID = "   ID:       %s\n"

	// MsgJobSchedule is the label for the job schedule field.
	MsgJobSchedule = "   Schedule: %s\n"

	// MsgJobCommand is the label for the job command field.
	MsgJobCommand = "   Command:  %s\n"

	// MsgJobNextRun is the label for the next computed run.
	MsgJobNextRun = "   Next:     %s\n"

	// MsgJobState is the label for the enabled/disabled state.
	MsgJobState = "   State:    %s\n"

	// MsgJobActivateNote is the note about activating a job.
	MsgJobActivateNote = "\nNote: Start 'nexbotd start' to activate this job\n"

	// MsgJobReloaded is the note printed when a running daemon was told to reload.
	MsgJobReloaded = "\nRunning daemon (pid %d) was asked to reload\n"

	// MsgJobRemoved is the success message when a job is removed.
	MsgJobRemoved = "✅ Job '%s' removed successfully\n"

	// MsgJobToggled is the success message when a job is enabled or disabled.
	MsgJobToggled = "✅ Job '%s' %s\n"

	// MsgJobNotFoundHint is the hint when a job is not found.
	MsgJobNotFoundHint = "Use 'nexbotd cron list' to see all jobs\n"
)

// Jobs list messages
const (
	// MsgJobsListHeader is the header for the jobs list display.
	MsgJobsListHeader = "Scheduled Tasks:\n-----------------\n"

	// MsgJobsListSep is the separator between jobs in the list.
	MsgJobsListSep = "-----------------\n"

	// MsgJobsTotal is the message showing the total count of jobs.
	MsgJobsTotal = "Total: %d job(s)\n"

	// MsgJobsNotFound is the message when no jobs are found.
	MsgJobsNotFound = "No scheduled tasks found.\n"
)
