package llm

import (
	"fmt"
	"strings"
)

const (
	Temperature = 0.7
	MaxTokens   = 1000
)

var systemMessages = map[string]string{
	"en": "You are a knowledgeable tutor who helps students understand concepts and solve problems step by step.",
	"id": "Anda adalah tutor yang berpengetahuan luas yang membantu siswa memahami konsep dan memecahkan masalah langkah demi langkah.",
	"es": "Eres un tutor experto que ayuda a los estudiantes a comprender conceptos y resolver problemas paso a paso.",
}

type promptTemplate struct {
	intro, fromFile, fromStudent, outro string
}

var prompts = map[string]promptTemplate{
	"en": {
		intro:       "You are a helpful tutor. Please help solve this %s question from %s:",
		fromFile:    "the attached file",
		fromStudent: "the student",
		outro:       "Provide a clear, step-by-step solution.",
	},
	"id": {
		intro:       "Anda adalah tutor yang membantu. Mohon bantu selesaikan soal %s ini dari %s:",
		fromFile:    "file terlampir",
		fromStudent: "siswa",
		outro:       "Berikan solusi yang jelas, langkah demi langkah.",
	},
	"es": {
		intro:       "Eres un tutor servicial. Por favor, ayuda a resolver esta pregunta de %s de %s:",
		fromFile:    "el archivo adjunto",
		fromStudent: "el estudiante",
		outro:       "Proporciona una solución clara, paso a paso.",
	},
}

// SystemPrompt returns the tutor persona for lang, defaulting to English.
func SystemPrompt(lang string) string {
	if s, ok := systemMessages[lang]; ok {
		return s
	}
	return systemMessages["en"]
}

// UserPrompt renders the question for t in t.Language.
func UserPrompt(t Task) string {
	p, ok := prompts[t.Language]
	if !ok {
		p = prompts["en"]
	}
	from := p.fromStudent
	if t.HasFile() {
		from = p.fromFile
	}
	var b strings.Builder
	b.WriteString(strings.Join(strings.Fields(fmt.Sprintf(p.intro, t.Subject, from)), " "))
	b.WriteString("\n\n")
	if s := strings.TrimSpace(t.Text); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString(p.outro)
	return b.String()
}
