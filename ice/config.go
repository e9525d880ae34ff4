package ice

// Role is the agent's hinted or negotiated controlling/controlled status
// (the agent's role, RFC 8445 §4).
type Role int

const (
	RoleAuto Role = iota
	RoleControlling
	RoleControlled
)

// Config configures a new Agent. Everything here corresponds to the
// environment/config collaborators.
type Config struct {
	// StunServers is a list of "host:port" STUN servers used for
	// server-reflexive gathering.
	StunServers []string

	// BindAddress optionally restricts gathering to one local interface
	// address. Empty means gather from all usable interfaces.
	BindAddress string

	// PortMin/PortMax optionally restrict the ephemeral UDP port range
	// used when binding local sockets. Zero means unrestricted.
	PortMin, PortMax int

	// RoleHint requests a starting role; RoleAuto starts the agent as
	// controlling. The remote description is not consulted for the role;
	// only a role conflict with the peer changes it.
	RoleHint Role

	// MaxMessageSize bounds the size of a single STUN or application
	// datagram this agent will process.
	MaxMessageSize int

	// IncludeLoopback includes loopback interfaces during host-candidate
	// gathering (useful for same-host testing, spec scenario S1).
	IncludeLoopback bool

	// Lite marks this as an ICE-Lite agent (RFC 8445 §2.7): it never
	// gathers server-reflexive candidates and never initiates checks,
	// only responds to inbound ones.
	Lite bool
}

func (c *Config) setDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 1500
	}
}
