package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the relay's semantic version as [major, minor, patch].
type Version [3]int

// CurrentVersion is the relay version this client was written against.
var CurrentVersion = Version{0, 10, 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// Compatible reports whether both versions share major and minor.
func (v Version) Compatible(other Version) bool {
	return v[0] == other[0] && v[1] == other[1]
}

// AddressLabels maps account addresses to human-readable labels.
type AddressLabels map[string]string

// UnmarshalJSON accepts either a bare address→label object or one nested
// under a "labels" key, which older relays send.
func (l *AddressLabels) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Labels map[string]string `json:"labels"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Labels != nil {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err == nil && len(probe) == 1 {
			*l = wrapped.Labels
			return nil
		}
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("address labels: %w", err)
	}
	*l = flat
	return nil
}

// AccountState is one recorded state of an account as the relay renders it.
type AccountState struct {
	Account   map[string]any `json:"account"`
	Rendered  string         `json:"rendered,omitempty"`
	Slot      uint64         `json:"slot"`
	Timestamp uint64         `json:"timestamp"`
}

// AccountStates is the state history the relay tracked for one address.
type AccountStates struct {
	Address string         `json:"pubkey"`
	States  []AccountState `json:"states"`
}

// UnmarshalJSON accepts both the [address, states] tuple and the
// {pubkey, states} object forms of the reply.
func (a *AccountStates) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var tuple []json.RawMessage
		if err := json.Unmarshal(trimmed, &tuple); err != nil {
			return fmt.Errorf("account states: %w", err)
		}
		if len(tuple) != 2 {
			return fmt.Errorf("account states: expected [address, states], got %d elements", len(tuple))
		}
		if err := json.Unmarshal(tuple[0], &a.Address); err != nil {
			return fmt.Errorf("account states address: %w", err)
		}
		if err := json.Unmarshal(tuple[1], &a.States); err != nil {
			return fmt.Errorf("account states list: %w", err)
		}
		return nil
	}

	type plain AccountStates
	var obj plain
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("account states: %w", err)
	}
	*a = AccountStates(obj)
	return nil
}
