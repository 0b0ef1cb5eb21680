// Package validator models the amman configuration handed to the validator
// executable and writes it to disk for a single start.
package validator

import "encoding/json"

// Config is the top-level amman configuration.
type Config struct {
	Validator             *ValidatorConfig `json:"validator,omitempty"`
	Relay                 *RelayConfig     `json:"relay,omitempty"`
	Storage               *StorageConfig   `json:"storage,omitempty"`
	Snapshot              *SnapshotConfig  `json:"snapshot,omitempty"`
	StreamTransactionLogs *bool            `json:"streamTransactionLogs,omitempty"`
	AssetsFolder          string           `json:"assetsFolder,omitempty"`
}

// ValidatorConfig configures the solana-test-validator amman starts.
type ValidatorConfig struct {
	// KillRunningValidators kills any test validator already running on the machine
	KillRunningValidators bool      `json:"killRunningValidators"`
	Programs              []Program `json:"programs,omitempty"`
	AccountsCluster       string    `json:"accountsCluster,omitempty"`
	Accounts              []Account `json:"accounts,omitempty"`
	JSONRPCURL            string    `json:"jsonRpcUrl,omitempty"`
	WebsocketURL          string    `json:"websocketUrl,omitempty"`
	Commitment            string    `json:"commitment,omitempty"`
	LedgerDir             string    `json:"ledgerDir,omitempty"`
	ResetLedger           *bool     `json:"resetLedger,omitempty"`
	// LimitLedgerSize is the number of shreds kept in root slots
	LimitLedgerSize    *uint64  `json:"limitLedgerSize,omitempty"`
	VerifyFees         *bool    `json:"verifyFees,omitempty"`
	Detached           *bool    `json:"detached,omitempty"`
	MatchFeatures      string   `json:"matchFeatures,omitempty"`
	DeactivateFeatures []string `json:"deactivateFeatures,omitempty"`
}

// Account is an account cloned from a cluster into the validator at startup.
type Account struct {
	Label      string `json:"label,omitempty"`
	AccountID  string `json:"accountId"`
	Cluster    string `json:"cluster,omitempty"`
	Executable *bool  `json:"executable,omitempty"`
}

// Program is a bpf program the validator loads at startup.
type Program struct {
	Label      string `json:"label,omitempty"`
	ProgramID  string `json:"programId"`
	DeployPath string `json:"deployPath"`
}

type RelayConfig struct {
	Enabled          *bool `json:"enabled,omitempty"`
	KillRunningRelay *bool `json:"killRunningRelay,omitempty"`
}

type StorageConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	StorageID    string `json:"storageId,omitempty"`
	ClearOnStart *bool  `json:"clearOnStart,omitempty"`
}

type SnapshotConfig struct {
	SnapshotFolder string `json:"snapshotFolder,omitempty"`
	Load           string `json:"load,omitempty"`
}

// JSON renders the config the way amman expects to read it.
func (c *Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Parse decodes an amman JSON config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
