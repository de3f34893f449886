package output

import (
	"encoding/json"
	"io"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/report"
)

// JSONRenderer emits structured run data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// List captures the JSON schema of the list command.
type List struct {
	Reduced  bool             `json:"reduced"`
	Devices  []fleet.Device   `json:"devices"`
	Programs []config.Program `json:"programs"`
}

// RenderFleet encodes a run report.
func (j *JSONRenderer) RenderFleet(rep report.Fleet) error {
	return j.encode(rep)
}

// RenderList encodes the fleet and program set.
func (j *JSONRenderer) RenderList(cfg config.Config, devices []fleet.Device) error {
	return j.encode(List{Reduced: cfg.Reduced, Devices: devices, Programs: cfg.ActivePrograms()})
}

func (j *JSONRenderer) encode(v any) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
