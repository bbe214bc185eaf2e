package card

import (
	htmltemplate "html/template"
	"testing"
	texttemplate "text/template"

	"github.com/stretchr/testify/assert"
)

func TestRenderUsesRegisteredTemplates(t *testing.T) {
	tg := texttemplate.Must(texttemplate.New("tg").Parse("TG:{{.event_key}}"))
	ui := htmltemplate.Must(htmltemplate.New("ui").Parse("UI:{{.event_key}}"))
	store := NewMapTemplateStore(map[string]TemplateSet{
		"primary_card": {TG: tg, UI: ui},
	})

	payload := RenderPayload{
		TemplateName: "primary_card",
		Context:      map[string]interface{}{"event_key": "ek1", "risk_level": "green"},
		Meta:         Meta{Type: TypePrimary, EventKey: "ek1"},
	}

	rendered := Render(store, payload)
	assert.Equal(t, "TG:ek1", rendered.TG)
	assert.Equal(t, "UI:ek1", rendered.UI)
	assert.False(t, rendered.Degrade)
}

func TestRenderFallsBackOnMissingTemplate(t *testing.T) {
	store := NewMapTemplateStore(map[string]TemplateSet{})
	payload := RenderPayload{
		TemplateName: "primary_card",
		Context:      map[string]interface{}{"risk_level": "green"},
		Meta:         Meta{Type: TypePrimary, EventKey: "ek1"},
	}

	rendered := Render(store, payload)
	assert.True(t, rendered.Degrade)
	assert.Contains(t, rendered.TG, "ek1")
	assert.Contains(t, rendered.TG, "template unavailable")
}

func TestRenderEscapesHTMLInUIVariant(t *testing.T) {
	tg := texttemplate.Must(texttemplate.New("tg").Parse("{{.note}}"))
	ui := htmltemplate.Must(htmltemplate.New("ui").Parse("{{.note}}"))
	store := NewMapTemplateStore(map[string]TemplateSet{
		"primary_card": {TG: tg, UI: ui},
	})

	payload := RenderPayload{
		TemplateName: "primary_card",
		Context:      map[string]interface{}{"note": "<b>hi</b>", "risk_level": "green"},
		Meta:         Meta{Type: TypePrimary, EventKey: "ek1"},
	}

	rendered := Render(store, payload)
	assert.Equal(t, "<b>hi</b>", rendered.TG)
	assert.NotContains(t, rendered.UI, "<b>")
}
