package relay

import "context"

// Version asks the relay for its version.
func (c *Client) Version(ctx context.Context) (Version, error) {
	return Query[Version](ctx, c, CommandRelayVersion)
}

// ValidatorPid returns the pid of the validator the relay is attached to.
// The relay answers with an error when no validator is running.
func (c *Client) ValidatorPid(ctx context.Context) (int, error) {
	return Query[int](ctx, c, CommandValidatorPid)
}

// KillAmman asks the relay to shut itself and its validator down.
func (c *Client) KillAmman(ctx context.Context) error {
	return c.Command(ctx, CommandKillAmman)
}

// KnownAddressLabels returns every address label the relay knows.
func (c *Client) KnownAddressLabels(ctx context.Context) (AddressLabels, error) {
	return Query[AddressLabels](ctx, c, CommandKnownAddressLabels)
}

// UpdateAddressLabels merges labels into the relay's known labels.
func (c *Client) UpdateAddressLabels(ctx context.Context, labels map[string]string) error {
	return c.Command(ctx, CommandUpdateAddressLabel, labels)
}

// AccountStates returns the recorded state history of address.
func (c *Client) AccountStates(ctx context.Context, address string) (AccountStates, error) {
	return Query[AccountStates](ctx, c, CommandAccountStates, address)
}
