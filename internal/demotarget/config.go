package demotarget

// Config holds configuration for the demo target server.
type Config struct {
	// Port is the port on which the demo target listens.
	Port int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port: 9999,
	}
}
