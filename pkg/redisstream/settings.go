package redisstream

// Settings holds Redis Streams transport configuration for Watermill.
// Disabled by default; the in-memory gochannel transport is used instead.
type Settings struct {
	Enabled  bool
	Addr     string
	Group    string
	Consumer string
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "canvas-ui",
		Consumer: "ui-1",
	}
}
