package sender

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

type messageTemplate struct {
	subject   *template.Template
	email     *template.Template
	pushTitle *template.Template
	pushBody  *template.Template
}

// Rendered: готовые тексты уведомления.
type Rendered struct {
	Subject   string
	EmailBody string
	PushTitle string
	PushBody  string
}

var templates = map[models.TemplateKey]messageTemplate{
	models.TemplatePauseEnded: parse(
		"La tua pausa è terminata",
		"Ciao,\n\nla pausa del tuo abbonamento si è conclusa il {{.pause_end}}.\n"+
			"L'abbonamento è di nuovo attivo: ti aspettiamo in palestra!\n",
		"Pausa terminata",
		"La tua pausa si è conclusa il {{.pause_end}}. Bentornato!",
	),
	models.TemplatePauseEnding: parse(
		"La tua pausa sta per finire",
		"Ciao,\n\nla pausa del tuo abbonamento termina il {{.pause_end}}.\n",
		"La pausa sta per finire",
		"La tua pausa termina il {{.pause_end}}. Ci vediamo presto!",
	),
	models.TemplateSubscriptionExpiring: parse(
		"Il tuo abbonamento scade {{if eq .days \"1\"}}domani{{else}}tra {{.days}} giorni{{end}}",
		"Ciao,\n\nil tuo abbonamento {{.plan}} scade il {{.expiry}}.\n"+
			"Rinnovalo per continuare ad allenarti senza interruzioni.\n",
		"Abbonamento in scadenza",
		"Il tuo abbonamento scade {{if eq .days \"1\"}}domani{{else}}tra {{.days}} giorni{{end}} ({{.expiry}}).",
	),
	models.TemplatePasswordReset: parse(
		"Reimposta la tua password",
		"Ciao,\n\nper impostare una nuova password apri questo link:\n{{.link}}\n\n"+
			"Il link scade tra {{.expires_in}}. Se non hai richiesto il reset, ignora questa email.\n",
		"Reimposta la password",
		"Controlla la tua email per reimpostare la password.",
	),
	models.TemplateBroadcast: parse(
		"{{.title}}",
		"{{.body}}\n",
		"{{.title}}",
		"{{.body}}",
	),
}

func parse(subject, email, pushTitle, pushBody string) messageTemplate {
	mk := func(name, text string) *template.Template {
		return template.Must(template.New(name).Option("missingkey=error").Parse(text))
	}
	return messageTemplate{
		subject:   mk("subject", subject),
		email:     mk("email", email),
		pushTitle: mk("push_title", pushTitle),
		pushBody:  mk("push_body", pushBody),
	}
}

// Render подставляет params в шаблон key.
func Render(key models.TemplateKey, params map[string]string) (Rendered, error) {
	const op = "sender.Render"
	tpl, ok := templates[key]
	if !ok {
		return Rendered{}, fmt.Errorf("%s: unknown template %q", op, key)
	}
	if params == nil {
		params = map[string]string{}
	}

	var out Rendered
	for _, part := range []struct {
		t   *template.Template
		dst *string
	}{
		{tpl.subject, &out.Subject},
		{tpl.email, &out.EmailBody},
		{tpl.pushTitle, &out.PushTitle},
		{tpl.pushBody, &out.PushBody},
	} {
		var buf bytes.Buffer
		if err := part.t.Execute(&buf, params); err != nil {
			return Rendered{}, fmt.Errorf("%s: %s: %w", op, key, err)
		}
		*part.dst = buf.String()
	}
	return out, nil
}

// PushFor строит push-сообщение по шаблону.
func PushFor(key models.TemplateKey, params map[string]string) (PushMessage, error) {
	r, err := Render(key, params)
	if err != nil {
		return PushMessage{}, err
	}
	return PushMessage{
		Title: r.PushTitle,
		Body:  r.PushBody,
		Data:  map[string]string{"template": string(key)},
	}, nil
}
