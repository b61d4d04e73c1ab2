// Package winsvc hosts the agent and the collector as Windows services.
// On other platforms every operation except SetupEventLog fails.
package winsvc

import "time"

// Service describes a binary registered with the Service Control Manager.
type Service struct {
	Name        string
	DisplayName string
	Description string
	// Command is the subcommand the service starts, e.g. "serve" or "agent".
	Command string
	// ConfigFile is passed as --config when set.
	ConfigFile string
}

// Args returns the command line the SCM starts the executable with.
func (s Service) Args() []string {
	args := []string{s.Command}
	if s.ConfigFile != "" {
		args = append(args, "--config", s.ConfigFile)
	}
	return args
}

// StopTimeout bounds how long a stop request waits for the run function.
const StopTimeout = 30 * time.Second

// restartDelays are the SCM recovery delays for the first failures; later
// failures are left alone until the failure count resets after a day.
var restartDelays = []time.Duration{10 * time.Second, 30 * time.Second}

const recoveryResetPeriod = uint32(24 * time.Hour / time.Second)
