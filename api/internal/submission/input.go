package submission

import "homework-mentor/api/internal/util"

// Accepted upload media types.
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimePDF  = "application/pdf"
)

var acceptedTypes = map[string]struct{}{
	MimePNG:  {},
	MimeJPEG: {},
	MimePDF:  {},
}

// Accepted reports whether mediaType may be uploaded.
func Accepted(mediaType string) bool {
	_, ok := acceptedTypes[util.BaseMediaType(mediaType)]
	return ok
}

// AcceptedTypes returns the accepted media types in a stable order.
func AcceptedTypes() []string {
	return []string{MimePNG, MimeJPEG, MimePDF}
}

type FileInput struct {
	Bytes    []byte
	Filename string
	MimeType string
}

type TextInput struct {
	Content string
}

// Input is either a file or a text; the zero value holds neither.
type Input struct {
	file *FileInput
	text *TextInput
}

func (in Input) File() (FileInput, bool) {
	if in.file == nil {
		return FileInput{}, false
	}
	return *in.file, true
}

// Text returns the staged text. ok is false when a file (or nothing) is staged.
func (in Input) Text() (string, bool) {
	if in.text == nil {
		return "", false
	}
	return in.text.Content, true
}

// IsEmpty reports whether there is nothing to submit: no file and no
// non-empty text.
func (in Input) IsEmpty() bool {
	if in.file != nil {
		return false
	}
	return in.text == nil || in.text.Content == ""
}

// Selector enforces file XOR text. It is not safe for concurrent use; the
// Controller serialises access to it.
type Selector struct {
	in Input
}

// SelectFile stages f, replacing any staged file and clearing text. Files
// whose media type is not accepted are refused with ErrUnsupportedType and
// the staged input is left as it was.
func (s *Selector) SelectFile(f FileInput) error {
	mt := detectMediaType(f)
	if !Accepted(mt) {
		return skip(ErrUnsupportedType)
	}
	f.MimeType = mt
	s.in = Input{file: &f}
	return nil
}

// SelectText stages content and drops any staged file, even when content is
// empty.
func (s *Selector) SelectText(content string) {
	s.in = Input{text: &TextInput{Content: content}}
}

func (s *Selector) Clear() {
	s.in = Input{}
}

func (s *Selector) Input() Input {
	return s.in
}

// detectMediaType classifies f the way the solving service does: content
// first, then the declared type, then the extension.
func detectMediaType(f FileInput) string {
	return util.SniffMime(f.Bytes, f.MimeType, f.Filename)
}
