package variables

import (
	"log"
	"os"
	"time"
)

const (
	HTTP_PORT_DEFAULT = "8080"
	HTTP_PORT_NAME    = "HTTP_PORT"

	JANUS_URL_DEFAULT = "http://localhost:8088/janus"
	JANUS_URL_NAME    = "JANUS_URL"

	JANUS_API_SECRET_DEFAULT = ""
	JANUS_API_SECRET_NAME    = "JANUS_API_SECRET"

	// Address the browser dials for media, usually a reverse-proxy path.
	JANUS_PUBLIC_URL_DEFAULT = "/janus"
	JANUS_PUBLIC_URL_NAME    = "JANUS_PUBLIC_URL"

	ROOM_TTL_DEFAULT = "30s"
	ROOM_TTL_NAME    = "ROOM_TTL"

	REAP_INTERVAL_DEFAULT = "10s"
	REAP_INTERVAL_NAME    = "REAP_INTERVAL"
)

func Env(variableName, defaultValue string) string {
	if variable := os.Getenv(variableName); variable != "" {
		log.Printf("[%s]: %s", variableName, variable)
		return variable
	}
	log.Printf("[%s_DEFAULT]: %s", variableName, defaultValue)
	return defaultValue
}

func EnvDuration(variableName, defaultValue string) time.Duration {
	raw := Env(variableName, defaultValue)
	duration, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[%s]: %q is not a duration, using %s", variableName, raw, defaultValue)
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
