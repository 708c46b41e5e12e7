package model

// IngestEnvelope carries one raw command line with source metadata.
// It is the transport contract between input sources and the command processor.
type IngestEnvelope struct {
	Source string
	Line   string
}
