package sshutils

import "time"

var (
	TimeInBetweenSSHRetries = 2 * time.Second
	SSHMaxRetryElapsed      = 1 * time.Minute
	SSHRetryAttempts        = 3
	SSHDialTimeout          = 10 * time.Second
)

const (
	DefaultSSHPort = 22

	// Preview lengths used when echoing commands and their output.
	CommandPreviewLength = 80
	OutputPreviewLength  = 400
)
