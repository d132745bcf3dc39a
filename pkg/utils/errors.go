package utils

const (
	ErrNoEventSource = "no event source configured"
)
