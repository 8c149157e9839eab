package readout

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/output"
	"github.com/itohio/gofreqmeter/pkg/pagestore"
)

// Memory is the data flash usage.
type Memory struct {
	UsedPages  int `json:"used_pages"`
	TotalPages int `json:"total_pages"`
	PageSize   int `json:"page_size"`
}

// Status is the instrument state served to read-out clients.
type Status struct {
	Settings map[string]any  `json:"settings"`
	Memory   Memory          `json:"memory"`
	Snapshot output.Snapshot `json:"snapshot"`
}

// BuildStatus collects settings, memory usage and the latest snapshot.
// The calibration password is never included. pages and out may be nil.
func BuildStatus(store *config.Store, pages *pagestore.Store, out *output.Output) (*Status, error) {
	cfg, err := store.Get()
	if err != nil {
		return nil, err
	}
	cfg.Security.Password = ""

	settings, err := settingsMap(cfg)
	if err != nil {
		return nil, err
	}
	st := &Status{Settings: settings}

	if pages != nil {
		used, total, err := pages.Usage()
		if err != nil {
			return nil, fmt.Errorf("memory usage: %w", err)
		}
		st.Memory = Memory{UsedPages: used, TotalPages: total, PageSize: pages.Flash().PageSize()}
	}
	if out != nil {
		st.Snapshot = out.Snapshot()
	}
	return st, nil
}

// settingsMap renders cfg with its yaml field names.
func settingsMap(cfg *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return m, nil
}

// JSON encodes the status on a single line.
func (s *Status) JSON() ([]byte, error) {
	return json.Marshal(s)
}
