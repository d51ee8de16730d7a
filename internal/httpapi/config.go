package httpapi

// Config holds HTTP server settings.
type Config struct {
	Addr                   string `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeoutSeconds     int    `envconfig:"HTTP_READ_TIMEOUT_SECONDS" default:"15"`
	WriteTimeoutSeconds    int    `envconfig:"HTTP_WRITE_TIMEOUT_SECONDS" default:"120"`
	ShutdownTimeoutSeconds int    `envconfig:"HTTP_SHUTDOWN_TIMEOUT_SECONDS" default:"15"`
}
