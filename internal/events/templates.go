package events

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/giantswarm/tandem/internal/api"
)

// MessageTemplateEngine renders one-line status messages for events.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[api.EventType]*template.Template
}

// NewMessageTemplateEngine creates an engine with the default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	e := &MessageTemplateEngine{templates: make(map[api.EventType]*template.Template)}
	e.loadDefaultTemplates()
	return e
}

func (e *MessageTemplateEngine) loadDefaultTemplates() {
	defaults := map[api.EventType]string{
		api.EventAuthSucceeded: `Signed in{{ with .Claims }}{{ with .Email }} as {{ . }}{{ end }}{{ end }}`,
		api.EventAuthFailed:    `Sign-in failed{{ with .Message }}: {{ . | trunc 200 }}{{ end }}`,
		api.EventAuthTimedOut:  `Sign-in timed out, no response from the browser`,
		api.EventUsersChanged:  `User list changed`,
	}
	for t, text := range defaults {
		if err := e.SetTemplate(t, text); err != nil {
			panic(err)
		}
	}
}

// SetTemplate replaces the template for an event type. Templates see the
// api.Event as their data and have the sprig functions available.
func (e *MessageTemplateEngine) SetTemplate(t api.EventType, text string) error {
	tmpl, err := template.New(string(t)).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return fmt.Errorf("parse template for %s: %w", t, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t] = tmpl
	return nil
}

// Render returns the message for ev.
func (e *MessageTemplateEngine) Render(ev api.Event) string {
	e.mu.RLock()
	tmpl, ok := e.templates[ev.Type]
	e.mu.RUnlock()

	if !ok {
		return fmt.Sprintf("Event: %s for user %s", ev.Type, ev.UserID)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ev); err != nil {
		return fmt.Sprintf("Event: %s for user %s", ev.Type, ev.UserID)
	}
	return buf.String()
}
