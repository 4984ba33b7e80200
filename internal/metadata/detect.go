package metadata

import (
	"fmt"

	"github.com/h2non/filetype"
)

// UnknownType is reported when the file's magic number is not recognised.
const UnknownType = "Unknown / Unsupported"

// DetectType sniffs the file's magic number and returns "<mime> (<ext>)".
// It never fails; unreadable or unknown files report UnknownType.
func DetectType(path string) string {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return UnknownType
	}
	return fmt.Sprintf("%s (%s)", kind.MIME.Value, kind.Extension)
}
