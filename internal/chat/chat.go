// Package chat holds the values shared by the session core, the backend client
// and the bot: knowledge sources, transcript messages and evidence chunks.
package chat

import "time"

type SourceKind string

const (
	KindDocument        SourceKind = "pdf"
	KindVideoTranscript SourceKind = "youtube"
	KindTabular         SourceKind = "csv"
)

// ParseKind maps a backend content type to a kind. The backend treats a missing
// content type as a PDF, so unknown values fall back to KindDocument.
func ParseKind(s string) SourceKind {
	switch SourceKind(s) {
	case KindVideoTranscript:
		return KindVideoTranscript
	case KindTabular:
		return KindTabular
	default:
		return KindDocument
	}
}

func (k SourceKind) Label() string {
	switch k {
	case KindVideoTranscript:
		return "video"
	case KindTabular:
		return "table"
	default:
		return "document"
	}
}

// Source is an ingested knowledge source. ID equals the file name on the backend.
type Source struct {
	ID        string
	Kind      SourceKind
	CreatedAt time.Time
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// EvidenceChunk is a retrieved passage returned alongside an answer.
type EvidenceChunk struct {
	Text   string
	Page   *int
	Source *string
}

// Question is one outbound exchange with the backend.
type Question struct {
	SourceID   string
	Text       string
	Credential string
	Model      string
}

// Answer is the backend reply to a question.
type Answer struct {
	Text     string
	Evidence []EvidenceChunk
}

type Profile struct {
	UserID         string
	Email          string
	DisplayName    string
	HasCredential  bool
	CredentialHint string
}
