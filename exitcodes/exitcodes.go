// Package exitcodes defines the standard exit codes used by guest-acceptor.
package exitcodes

// Exit code constants used by guest-acceptor
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every case recorded its terminal state, whatever
//   that state was. Failing or aborted cases still exit 0; their outcomes
//   live in the state files.
// * PersistenceErr (1): Used when one or more state files could not be written
// * RuntimeErr (2): Used for runtime errors such as panics, bad configuration
//   or other failures before any case ran
const (
	Success        = 0 // All case states persisted
	PersistenceErr = 1 // State file writes failed
	RuntimeErr     = 2 // Runtime errors or bad configuration
)
