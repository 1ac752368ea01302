package version

// Version is overridden at build time via -ldflags "-X ...version.Version=..."
var Version = "0.1.0"

// UserAgent returns the default User-Agent header sent with every fetch
func UserAgent() string {
	return "site-scribe/" + Version
}
