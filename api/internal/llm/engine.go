package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Attachment is an uploaded image or document passed to the model as is.
type Attachment struct {
	Data     []byte
	MimeType string
	Filename string
}

// Task is one homework question.
type Task struct {
	Text       string
	Subject    string
	Language   string
	Attachment *Attachment
}

func (t Task) HasFile() bool { return t.Attachment != nil && len(t.Attachment.Data) > 0 }

type Solution struct {
	Text   string
	Engine string
	Model  string
}

type Engine interface {
	Name() string
	GetModel() string
	Solve(ctx context.Context, t Task) (Solution, error)
}

// ErrInvalidAPIKey is returned by engines when the provider rejects or lacks
// the API key.
var ErrInvalidAPIKey = errors.New("API key is invalid or not set. Please check your .env file")

// Engines is the set of configured engines with a default.
type Engines struct {
	def    string
	byName map[string]Engine
}

// NewEngines registers the non-nil engines. def names the default; when it is
// not registered the first engine wins.
func NewEngines(def string, engs ...Engine) *Engines {
	e := &Engines{byName: make(map[string]Engine, len(engs))}
	for _, eng := range engs {
		if eng == nil {
			continue
		}
		e.byName[eng.Name()] = eng
		if e.def == "" {
			e.def = eng.Name()
		}
	}
	if _, ok := e.byName[def]; ok {
		e.def = def
	}
	return e
}

// GetEngine returns the engine called name, or the default one for "".
func (e *Engines) GetEngine(name string) (Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = e.def
	}
	if eng, ok := e.byName[name]; ok {
		return eng, nil
	}
	return nil, fmt.Errorf("unknown engine %q (available: %s)", name, strings.Join(e.Names(), ", "))
}

func (e *Engines) Default() Engine {
	return e.byName[e.def]
}

func (e *Engines) Names() []string {
	out := make([]string, 0, len(e.byName))
	for n := range e.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
