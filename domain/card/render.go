package card

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// TemplateSet holds the parsed .tg (Telegram markup, no escaping) and
// .ui (HTML, auto-escaped) variants for one card type.
type TemplateSet struct {
	TG *texttemplate.Template
	UI *htmltemplate.Template
}

// TemplateStore resolves a card type's TemplateSet, typically backed by
// templates parsed out of an embedded or on-disk directory.
type TemplateStore interface {
	Lookup(base string) (TemplateSet, bool)
}

// mapTemplateStore is a minimal in-memory TemplateStore, built once at
// startup from parsed template files.
type mapTemplateStore struct {
	sets map[string]TemplateSet
}

// NewMapTemplateStore builds a TemplateStore from pre-parsed sets.
func NewMapTemplateStore(sets map[string]TemplateSet) TemplateStore {
	return mapTemplateStore{sets: sets}
}

func (s mapTemplateStore) Lookup(base string) (TemplateSet, bool) {
	set, ok := s.sets[base]
	return set, ok
}

// Rendered holds the two rendered text variants and whether rendering
// degraded to a fallback.
type Rendered struct {
	TG      string
	UI      string
	Degrade bool
}

// Render executes both template variants for payload.TemplateName; a
// missing template falls back to a concise text summary and marks the
// result degraded rather than failing the call.
func Render(store TemplateStore, payload RenderPayload) Rendered {
	set, ok := store.Lookup(payload.TemplateName)
	if !ok {
		fallback := fallbackText(payload)
		return Rendered{TG: fallback, UI: fallback, Degrade: true}
	}

	var tgBuf, uiBuf bytes.Buffer
	degrade := false

	if set.TG != nil {
		if err := set.TG.Execute(&tgBuf, payload.Context); err != nil {
			tgBuf.Reset()
			tgBuf.WriteString(fallbackText(payload))
			degrade = true
		}
	} else {
		tgBuf.WriteString(fallbackText(payload))
		degrade = true
	}

	if set.UI != nil {
		if err := set.UI.Execute(&uiBuf, payload.Context); err != nil {
			uiBuf.Reset()
			uiBuf.WriteString(fallbackText(payload))
			degrade = true
		}
	} else {
		uiBuf.WriteString(fallbackText(payload))
		degrade = true
	}

	return Rendered{TG: tgBuf.String(), UI: uiBuf.String(), Degrade: degrade}
}

func fallbackText(payload RenderPayload) string {
	riskLevel, _ := payload.Context["risk_level"].(string)
	return fmt.Sprintf("[%s] event %s risk=%s (template unavailable)",
		payload.Meta.Type, payload.Meta.EventKey, riskLevel)
}
