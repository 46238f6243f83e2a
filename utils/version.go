package utils

// Build-time version information, set through ldflags.
var (
	Tag        string
	GitHash    string
	BuildStamp string
)
