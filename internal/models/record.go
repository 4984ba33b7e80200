package models

// Record is the string-keyed metadata mapping returned for a single file.
// Its shape depends on the format family and is not normalized across families.
type Record map[string]string

// Reserved keys used when a record carries a signal instead of metadata.
const (
	KeyError = "error"
	KeyInfo  = "info"
)

// UnsupportedInfo is the placeholder message returned for unknown file types.
const UnsupportedInfo = "Unsupported file type or no metadata found"

// ErrorRecord builds a record holding only an error message.
func ErrorRecord(msg string) Record {
	return Record{KeyError: msg}
}

// InfoRecord builds a record holding only an informational message.
func InfoRecord(msg string) Record {
	return Record{KeyInfo: msg}
}

// Family groups the file extensions that share an extraction strategy.
type Family string

const (
	FamilyImage       Family = "image"
	FamilyPDF         Family = "pdf"
	FamilyDocument    Family = "document"
	FamilyAudio       Family = "audio"
	FamilyUnsupported Family = "unsupported"
)
