package model

// DirectPacingKey is the pacing key for requests that use no proxy
const DirectPacingKey = "direct"

// Identity is the header set a request presents to the register
type Identity struct {
	UserAgent string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers   map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
}

// FetchJob is one unit of batch work
type FetchJob struct {
	Number    string
	URL       string
	Identity  Identity
	Proxy     string // Egress proxy URL, empty for direct
	PacingKey string // Scarce resource being paced (the proxy, not the agent)
}

// PacingKeyFor returns the pacing key for an egress proxy
func PacingKeyFor(proxy string) string {
	if proxy == "" {
		return DirectPacingKey
	}
	return proxy
}
