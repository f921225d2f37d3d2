package domain

// Reference is one cited document: a file name and the URL recorded in
// its metadata at upload time, or the file name again when no URL is
// available.
type Reference struct {
	Name string
	URL  string
}

// Citation anchors a group of references at a byte offset into the
// answer text. Positions always refer to the original, unmodified
// message string.
type Citation struct {
	Position   int
	References []Reference
}

// NormalizedAnswer is the backend answer reduced to the internal
// (message, citations) shape the formatter renders from.
type NormalizedAnswer struct {
	Message   string
	Citations []Citation
}

// AnswerFile is the backend's description of a cited file: its stored
// name plus the metadata written at upload time.
type AnswerFile struct {
	Name     string
	Metadata RemoteMetadata
}

// AnswerReference is one raw backend reference before URL resolution.
type AnswerReference struct {
	File AnswerFile
}

// AnswerCitation is one raw backend citation.
type AnswerCitation struct {
	Position   int
	References []AnswerReference
}

// AssistantAnswer is the raw answer object as the backend returns it.
// The formatter normalises it before rendering.
type AssistantAnswer struct {
	Message   string
	Citations []AnswerCitation
}
