// Package prompt renders the system and reply prompts handed back to the LLM.
package prompt

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"
)

// TimeLayout is the format of the current time shown to the model.
const TimeLayout = "2006-01-02 15:04:05"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type systemData struct {
	OSVersion   string
	CurrentTime string
	Knowledge   string
}

type replyData struct {
	SystemPrompt string
	LLMOutput    string
	Execution    string
}

// Builder renders prompts for one agent process.
type Builder struct {
	knowledgePath string
	now           func() time.Time
	osVersion     func() string
}

// Option customizes a Builder.
type Option func(*Builder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithOSVersion pins the reported OS version instead of detecting it.
func WithOSVersion(version string) Option {
	return func(b *Builder) { b.osVersion = func() string { return version } }
}

func NewBuilder(knowledgePath string, opts ...Option) *Builder {
	b := &Builder{
		knowledgePath: knowledgePath,
		now:           time.Now,
		osVersion: sync.OnceValue(func() string {
			return DetectOSVersion(context.Background())
		}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SystemPrompt renders the role and rules prompt. The learned knowledge file is
// included only when withKnowledge is set; a missing file yields no knowledge.
func (b *Builder) SystemPrompt(withKnowledge bool) (string, error) {
	data := systemData{
		OSVersion:   b.osVersion(),
		CurrentTime: b.now().Format(TimeLayout),
	}
	if withKnowledge {
		knowledge, err := b.loadKnowledge()
		if err != nil {
			return "", err
		}
		data.Knowledge = knowledge
	}
	return render("system.tmpl", data)
}

// ReplyPrompt embeds the LLM output and the rendered execution report.
func (b *Builder) ReplyPrompt(llmOutput, execution string) (string, error) {
	system, err := b.SystemPrompt(false)
	if err != nil {
		return "", err
	}
	return render("reply.tmpl", replyData{
		SystemPrompt: system,
		LLMOutput:    llmOutput,
		Execution:    execution,
	})
}

func (b *Builder) loadKnowledge() (string, error) {
	if b.knowledgePath == "" {
		return "", nil
	}
	data, err := os.ReadFile(b.knowledgePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read knowledge file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
