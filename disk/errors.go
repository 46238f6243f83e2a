package disk

import "fmt"

// MissingVersionTokenError reports a file pattern without the mandatory
// version placeholder. Without it, schema drift within a rotation bucket
// could never be diverted to a fresh file.
type MissingVersionTokenError string

func (msg MissingVersionTokenError) Error() string {
	return fmt.Sprintf("file pattern %q does not contain the ${LOG_VERSION} placeholder", string(msg))
}

// VersionOverflowError reports more version bumps within one rotation
// bucket than any legitimate schema drift could produce. It signals a
// naming or template defect, not a transient condition.
type VersionOverflowError struct {
	Filename string
	Version  int
}

func (e *VersionOverflowError) Error() string {
	return fmt.Sprintf("version %d exceeds the limit resolving %s", e.Version, e.Filename)
}
