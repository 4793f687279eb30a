package version

// Overridden at build time via -ldflags "-X ...".
var (
	Version = "0.3.0"
	Commit  = ""
)

func String() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}
