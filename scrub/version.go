package scrub

// version can be overridden via ldflags at build time.
var version = "dev"

// Version returns the current filter version label.
func Version() string {
	return version
}
