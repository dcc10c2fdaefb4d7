// Package email composes the notification email sent when a job finishes.
//
// The job runner picks up the email document from the job volume and turns
// it into a real message; this package only maintains that document.
package email

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/psantana5/bandit/pkg/sink"
)

const (
	// DefaultSubject is used when no subject is set.
	DefaultSubject = "Bandit Job"
	// MaxAttachmentSize is the largest attachment accepted, in bytes.
	MaxAttachmentSize = 1000000
)

// DefaultBody is used when no body is set.
const DefaultBody = "Your job has completed. This is the default message. You can " +
	"customize this message by creating an email and setting its body to " +
	"stringified HTML or a plaintext string.\n\nCheers!\n~Team Bandit"

// ErrAttachmentTooLarge is returned for attachments over MaxAttachmentSize.
var ErrAttachmentTooLarge = errors.New("email: attachment too large")

// Attachment is a base64 encoded file.
type Attachment struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Document is the JSON form read by the job runner.
type Document struct {
	Recipients  []string     `json:"recipients"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
	IsHTML      bool         `json:"isHTML"`
}

// Email is a notification email. Every change is written through to the
// sink; a change whose write fails is not applied.
type Email struct {
	doc  Document
	sink sink.Sink
}

// New creates an email with the default subject and body and writes it.
// A nil sink keeps the email in memory only.
func New(s sink.Sink, recipients ...string) (*Email, error) {
	e := &Email{sink: s}
	if err := e.commit(Document{
		Recipients:  splitRecipients(recipients),
		Subject:     DefaultSubject,
		Body:        DefaultBody,
		Attachments: []Attachment{},
		IsHTML:      true,
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// Subject sets the subject line. An empty subject restores the default.
func (e *Email) Subject(subject string) error {
	if subject == "" {
		subject = DefaultSubject
	}
	doc := e.Document()
	doc.Subject = subject
	return e.commit(doc)
}

// Body sets the body, either HTML or plain text. An empty body restores the
// default.
func (e *Email) Body(body string) error {
	if body == "" {
		body = DefaultBody
	}
	doc := e.Document()
	doc.Body = body
	return e.commit(doc)
}

// AddAttachment attaches the file at path. When contentType is empty it is
// guessed from the extension, then from the content.
func (e *Email) AddAttachment(path, contentType string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	if len(content) > MaxAttachmentSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrAttachmentTooLarge, path, len(content))
	}
	if contentType == "" {
		contentType = detectType(path, content)
	}
	doc := e.Document()
	doc.Attachments = append(doc.Attachments, Attachment{
		Type:    contentType,
		Name:    filepath.Base(path),
		Content: base64.StdEncoding.EncodeToString(content),
	})
	return e.commit(doc)
}

// Send sets the recipients. A single comma-separated string is split into
// addresses.
func (e *Email) Send(to ...string) error {
	doc := e.Document()
	doc.Recipients = splitRecipients(to)
	return e.commit(doc)
}

// Recipients returns the current recipients.
func (e *Email) Recipients() []string {
	return append([]string(nil), e.doc.Recipients...)
}

// Document returns a copy of the document written to the sink.
func (e *Email) Document() Document {
	doc := e.doc
	doc.Recipients = append([]string{}, e.doc.Recipients...)
	doc.Attachments = append([]Attachment{}, e.doc.Attachments...)
	return doc
}

func (e *Email) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Document())
}

// String renders a plain-text preview framed by rules.
func (e *Email) String() string {
	rule := strings.Repeat("=", 70)
	names := make([]string, len(e.doc.Attachments))
	for i, a := range e.doc.Attachments {
		names[i] = "  - " + a.Name
	}
	return strings.Join([]string{
		rule,
		strings.Join(e.doc.Recipients, ", "),
		rule,
		"> " + e.doc.Subject,
		rule,
		e.doc.Body,
		rule,
		strings.Join(names, "\n"),
	}, "\n")
}

// commit persists candidate and only then makes it current.
func (e *Email) commit(candidate Document) error {
	if e.sink != nil {
		data, err := json.Marshal(candidate)
		if err != nil {
			return fmt.Errorf("failed to encode email: %w", err)
		}
		if err := e.sink.Write(data); err != nil {
			return fmt.Errorf("failed to write email: %w", err)
		}
	}
	e.doc = candidate
	return nil
}

func splitRecipients(in []string) []string {
	if len(in) == 1 && strings.Contains(in[0], ",") {
		in = strings.Split(in[0], ",")
	}
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func detectType(path string, content []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return mimetype.Detect(content).String()
}
