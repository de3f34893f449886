package fleet

import (
	"fmt"
	"strings"

	"github.com/bgricker/fleetctl/internal/remote"
)

// Device is one member of the fleet. Devices are owned by the Registry.
type Device struct {
	Ordinal  int       `json:"ordinal"`
	Hostname string    `json:"hostname"`
	User     string    `json:"user"`
	State    State     `json:"state"`
	Address  string    `json:"address,omitempty"`
	Failures []Failure `json:"failures,omitempty"`

	endpoint remote.Endpoint
}

// Failure is a per-phase error recorded against a device.
type Failure struct {
	Phase  string `json:"phase"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// Endpoint returns the login target of the device.
func (d *Device) Endpoint() remote.Endpoint {
	return d.endpoint
}

// Eligible reports whether the device may take part in further phases.
func (d *Device) Eligible() bool {
	return !d.State.Terminal()
}

func (d *Device) String() string {
	return d.Hostname
}

// Naming derives device identity from an ordinal.
type Naming struct {
	HostPattern string
	Domain      string
	UserPattern string
}

// DefaultNaming matches the pi<N>.wifi.etsu.edu fleet.
func DefaultNaming() Naming {
	return Naming{HostPattern: "pi%d", Domain: "wifi.etsu.edu", UserPattern: "pi%d"}
}

// Endpoint derives the endpoint of device n.
func (n Naming) Endpoint(ordinal int) remote.Endpoint {
	host := fmt.Sprintf(n.HostPattern, ordinal)
	if n.Domain != "" {
		host = host + "." + n.Domain
	}
	user := n.UserPattern
	if strings.Contains(user, "%") {
		user = fmt.Sprintf(n.UserPattern, ordinal)
	}
	return remote.Endpoint{Host: host, User: user}
}
