package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode where cookie security
// requirements can be relaxed for local testing over plain HTTP. Unset means
// production.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("CREWDESK_ENV"))
	return env == "development" || env == "dev"
}
