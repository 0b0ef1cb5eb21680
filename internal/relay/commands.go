package relay

import "net/http"

// DefaultURL is where the amman relay listens unless configured otherwise.
const DefaultURL = "http://localhost:50474"

// restPath is the path prefix the relay serves request/reply commands under.
const restPath = "relay"

// Command is a relay message tag. Each tag maps to exactly one HTTP route.
type Command string

const (
	CommandRelayVersion       Command = "request:relay-version"
	CommandValidatorPid       Command = "request:validator-pid"
	CommandKillAmman          Command = "request:kill-amman"
	CommandKnownAddressLabels Command = "get:known-address-labels"
	CommandUpdateAddressLabel Command = "update:address-labels"
	CommandAccountStates      Command = "request:account-states"
)

// Method returns the HTTP method the relay expects for the command.
// Queries without arguments are GETs, everything else is a POST.
func (c Command) Method() string {
	switch c {
	case CommandRelayVersion, CommandValidatorPid, CommandKnownAddressLabels:
		return http.MethodGet
	default:
		return http.MethodPost
	}
}

func (c Command) String() string {
	return string(c)
}
