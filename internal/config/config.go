// Package config loads the JSON configuration spec.md §6 describes:
// antenna/user counts, OFDM dimensions, symbol schedule, LDPC
// parameters, modulation order, addressing, and run length. Parsing
// itself is treated as an external collaborator per spec.md §1 ("JSON
// configuration parsing" is out of scope as a hand-rolled parser) — this
// package is a thin typed wrapper over encoding/json, the same idiom the
// teacher uses for its own HardwareConfig in hardware_control.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SymbolKind classifies one symbol slot in the per-frame schedule.
type SymbolKind string

const (
	SymbolBeacon SymbolKind = "beacon"
	SymbolPilot  SymbolKind = "pilot"
	SymbolData   SymbolKind = "data"
)

// LDPCConfig mirrors spec.md §6's LDPC parameter set.
type LDPCConfig struct {
	Bg          int `json:"bg"`
	Zc          int `json:"zc"`
	NRows       int `json:"n_rows"`
	CBLen       int `json:"cb_len"`
	CBCodewLen  int `json:"cb_codew_len"`
	DecoderIter int `json:"decoder_iter"`
}

// Config is the full run configuration loaded from a JSON file.
type Config struct {
	BSAntNum int `json:"bs_ant_num"`
	UENum    int `json:"ue_num"`

	OFDMCANum     int `json:"ofdm_ca_num"`
	OFDMDataNum   int `json:"ofdm_data_num"`
	OFDMDataStart int `json:"ofdm_data_start"`
	CPLen         int `json:"cp_len"`

	SymbolSchedule []SymbolKind `json:"symbol_schedule"`

	DemulBlockSize int `json:"demul_block_size"`
	ModOrderBits   int `json:"mod_order_bits"`

	LDPC LDPCConfig `json:"ldpc"`

	TaskBufferFrameNum int `json:"task_buffer_frame_num"` // F
	FramesToTest       int `json:"frames_to_test"`

	ServerAddr string `json:"server_addr"`
	ClientAddr string `json:"client_addr"`
	BasePort   int    `json:"base_port"`

	NumRXShards   int `json:"num_rx_shards"`
	NumTXShards   int `json:"num_tx_shards"`
	NumWorkers    int `json:"num_workers"`
	CoreOffset    int `json:"core_offset"`

	NoiseLevel float64 `json:"noise_level"`
}

// Load reads and parses a JSON config file, failing fast with a single
// diagnostic per spec.md §7's configuration error class.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the invariants spec.md §8 Boundaries requires before
// the engine is allowed to start.
func (c *Config) Validate() error {
	if c.BSAntNum <= 0 || c.UENum <= 0 {
		return fmt.Errorf("bs_ant_num and ue_num must be positive")
	}
	if c.OFDMDataNum%8 != 0 {
		return fmt.Errorf("ofdm_data_num (%d) must divide evenly by the SC-per-cacheline constant (8)", c.OFDMDataNum)
	}
	if c.DemulBlockSize <= 0 || c.OFDMDataNum%c.DemulBlockSize != 0 {
		return fmt.Errorf("demul_block_size (%d) must divide ofdm_data_num (%d)", c.DemulBlockSize, c.OFDMDataNum)
	}
	if c.LDPC.Zc < 2 || c.LDPC.Zc > 384 {
		return fmt.Errorf("ldpc.zc (%d) must be in [2, 384] per 5G NR", c.LDPC.Zc)
	}
	if c.TaskBufferFrameNum <= 0 {
		return fmt.Errorf("task_buffer_frame_num must be positive")
	}
	if len(c.SymbolSchedule) == 0 {
		return fmt.Errorf("symbol_schedule must not be empty")
	}
	return nil
}

// SubcarrierBlocks returns OFDM_DATA_NUM / DemulBlockSize.
func (c *Config) SubcarrierBlocks() int { return c.OFDMDataNum / c.DemulBlockSize }

// PilotSymbols returns the indices of pilot symbols in the schedule.
func (c *Config) PilotSymbols() []int {
	var out []int
	for i, k := range c.SymbolSchedule {
		if k == SymbolPilot {
			out = append(out, i)
		}
	}
	return out
}

// DataSymbols returns the indices of data symbols in the schedule.
func (c *Config) DataSymbols() []int {
	var out []int
	for i, k := range c.SymbolSchedule {
		if k == SymbolData {
			out = append(out, i)
		}
	}
	return out
}
