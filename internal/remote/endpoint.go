package remote

// Endpoint identifies the login target of a single device.
type Endpoint struct {
	Host string `json:"host"`
	User string `json:"user"`
}

// Target renders the endpoint as the user@host form understood by ssh and scp.
func (e Endpoint) Target() string {
	if e.User == "" {
		return e.Host
	}
	return e.User + "@" + e.Host
}

func (e Endpoint) String() string {
	return e.Target()
}
