package utils

const (
	// standard exit codes
	ExitCodeSuccess = iota
	ExitCodeError   = 1

	// custom exit codes
	ExitCodeNoEventSource   = 100
	ExitCodePipelineFailed  = 101
	ExitCodeShutdownTimeout = 102
)
