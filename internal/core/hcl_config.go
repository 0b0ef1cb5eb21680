package core

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"go.olrik.dev/amman/internal/probe"
	"go.olrik.dev/amman/internal/relay"
	"go.olrik.dev/amman/internal/supervisor"
	"go.olrik.dev/amman/internal/validator"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete ammanctl configuration
type Configuration struct {
	ConfigPath string            // Directory containing config files
	Executable string            // amman entry point, invoked as `<exe> start|stop`
	RelayURL   string            // Root URL of the amman relay
	Verbose    int               // Verbosity level
	HistoryDB  string            // Lifecycle journal location
	TempDir    string            // Where materialized validator configs go
	Ports      PortsConfig       // Ports the validator listens on
	Timeouts   TimeoutsConfig    // Bounds for every wait
	Labels     map[string]string // Address labels pushed to the relay after start

	validator *validator.Config
}

// PortsConfig holds the validator ports
type PortsConfig struct {
	RPC       int
	Websocket int
}

// TimeoutsConfig holds the lifecycle timeouts
type TimeoutsConfig struct {
	Start        time.Duration
	Stop         time.Duration
	Request      time.Duration
	PollInterval time.Duration
}

// HCL parsing structs

type hclConfig struct {
	Executable string            `hcl:"executable,optional"`
	RelayURL   string            `hcl:"relay_url,optional"`
	Verbose    int               `hcl:"verbose,optional"`
	HistoryDB  string            `hcl:"history_db,optional"`
	TempDir    string            `hcl:"temp_dir,optional"`
	Labels     map[string]string `hcl:"labels,optional"`
	Ports      *hclPorts         `hcl:"ports,block"`
	Timeouts   *hclTimeouts      `hcl:"timeouts,block"`
	Validator  *hclValidator     `hcl:"validator,block"`
}

type hclPorts struct {
	RPC       int `hcl:"rpc,optional"`
	Websocket int `hcl:"websocket,optional"`
}

type hclTimeouts struct {
	Start        string `hcl:"start,optional"`
	Stop         string `hcl:"stop,optional"`
	Request      string `hcl:"request,optional"`
	PollInterval string `hcl:"poll_interval,optional"`
}

type hclValidator struct {
	KillRunningValidators *bool        `hcl:"kill_running_validators,optional"`
	AccountsCluster       string       `hcl:"accounts_cluster,optional"`
	JSONRPCURL            string       `hcl:"json_rpc_url,optional"`
	WebsocketURL          string       `hcl:"websocket_url,optional"`
	Commitment            string       `hcl:"commitment,optional"`
	LedgerDir             string       `hcl:"ledger_dir,optional"`
	ResetLedger           *bool        `hcl:"reset_ledger,optional"`
	LimitLedgerSize       *int64       `hcl:"limit_ledger_size,optional"`
	VerifyFees            *bool        `hcl:"verify_fees,optional"`
	Detached              *bool        `hcl:"detached,optional"`
	MatchFeatures         string       `hcl:"match_features,optional"`
	DeactivateFeatures    []string     `hcl:"deactivate_features,optional"`
	StreamTransactionLogs *bool        `hcl:"stream_transaction_logs,optional"`
	AssetsFolder          string       `hcl:"assets_folder,optional"`
	Accounts              []hclAccount `hcl:"account,block"`
	Programs              []hclProgram `hcl:"program,block"`
}

type hclAccount struct {
	ID         string `hcl:"id,label"`
	Label      string `hcl:"label,optional"`
	Cluster    string `hcl:"cluster,optional"`
	Executable *bool  `hcl:"executable,optional"`
}

type hclProgram struct {
	ID         string `hcl:"id,label"`
	Label      string `hcl:"label,optional"`
	DeployPath string `hcl:"deploy_path"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Verbose = hclCfg.Verbose
	if hclCfg.Executable != "" {
		cfg.Executable = hclCfg.Executable
	}
	if hclCfg.RelayURL != "" {
		cfg.RelayURL = hclCfg.RelayURL
	}
	cfg.HistoryDB = hclCfg.HistoryDB
	cfg.TempDir = hclCfg.TempDir
	if hclCfg.Labels != nil {
		cfg.Labels = hclCfg.Labels
	}

	if hclCfg.Ports != nil {
		if hclCfg.Ports.RPC != 0 {
			cfg.Ports.RPC = hclCfg.Ports.RPC
		}
		if hclCfg.Ports.Websocket != 0 {
			cfg.Ports.Websocket = hclCfg.Ports.Websocket
		}
	}

	if t := hclCfg.Timeouts; t != nil {
		durations := []struct {
			key   string
			value string
			dest  *time.Duration
		}{
			{"timeouts.start", t.Start, &cfg.Timeouts.Start},
			{"timeouts.stop", t.Stop, &cfg.Timeouts.Stop},
			{"timeouts.request", t.Request, &cfg.Timeouts.Request},
			{"timeouts.poll_interval", t.PollInterval, &cfg.Timeouts.PollInterval},
		}
		for _, d := range durations {
			if d.value == "" {
				continue
			}
			parsed, err := time.ParseDuration(d.value)
			if err != nil {
				return nil, fmt.Errorf("invalid duration for %s: %w", d.key, err)
			}
			if parsed <= 0 {
				return nil, fmt.Errorf("invalid duration for %s: must be positive", d.key)
			}
			*d.dest = parsed
		}
	}

	if hclCfg.Validator != nil {
		cfg.validator = convertValidator(hclCfg.Validator)
	}

	return cfg, nil
}

func convertValidator(v *hclValidator) *validator.Config {
	vc := &validator.ValidatorConfig{
		AccountsCluster:    v.AccountsCluster,
		JSONRPCURL:         v.JSONRPCURL,
		WebsocketURL:       v.WebsocketURL,
		Commitment:         v.Commitment,
		LedgerDir:          v.LedgerDir,
		ResetLedger:        v.ResetLedger,
		VerifyFees:         v.VerifyFees,
		Detached:           v.Detached,
		MatchFeatures:      v.MatchFeatures,
		DeactivateFeatures: v.DeactivateFeatures,
	}
	if v.KillRunningValidators != nil {
		vc.KillRunningValidators = *v.KillRunningValidators
	}
	if v.LimitLedgerSize != nil && *v.LimitLedgerSize > 0 {
		size := uint64(*v.LimitLedgerSize)
		vc.LimitLedgerSize = &size
	}
	for _, a := range v.Accounts {
		vc.Accounts = append(vc.Accounts, validator.Account{
			AccountID:  a.ID,
			Label:      a.Label,
			Cluster:    a.Cluster,
			Executable: a.Executable,
		})
	}
	for _, p := range v.Programs {
		vc.Programs = append(vc.Programs, validator.Program{
			ProgramID:  p.ID,
			Label:      p.Label,
			DeployPath: p.DeployPath,
		})
	}

	return &validator.Config{
		Validator:             vc,
		StreamTransactionLogs: v.StreamTransactionLogs,
		AssetsFolder:          v.AssetsFolder,
	}
}

// ValidatorConfig returns the amman config built from the validator block,
// or nil when the file has none and amman should use its own defaults.
func (c *Configuration) ValidatorConfig() *validator.Config {
	return c.validator
}

// PortList returns the ports that must be bound while the validator runs
func (c *Configuration) PortList() []int {
	return []int{c.Ports.RPC, c.Ports.Websocket}
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Executable: supervisor.DefaultExecutable,
		RelayURL:   relay.DefaultURL,
		Ports: PortsConfig{
			RPC:       probe.RPCPort,
			Websocket: probe.WebsocketPort,
		},
		Timeouts: TimeoutsConfig{
			Start:        supervisor.DefaultStartTimeout,
			Stop:         supervisor.DefaultStopTimeout,
			Request:      relay.DefaultTimeout,
			PollInterval: supervisor.DefaultPollInterval,
		},
		Labels: make(map[string]string),
	}
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}
