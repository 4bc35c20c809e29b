package models

import "fmt"

// Channel: канал доставки уведомления.
type Channel string

const (
	// ChannelEmail: электронная почта.
	ChannelEmail Channel = "email"
	// ChannelPush: push-уведомление на устройство.
	ChannelPush Channel = "push"
)

// TemplateKey: ключ шаблона уведомления.
type TemplateKey string

const (
	TemplatePauseEnded           TemplateKey = "pause_ended"
	TemplatePauseEnding          TemplateKey = "pause_ending"
	TemplateSubscriptionExpiring TemplateKey = "subscription_expiring"
	TemplatePasswordReset        TemplateKey = "password_reset"
	TemplateBroadcast            TemplateKey = "broadcast"
)

// Directive: указание отправить одно уведомление одному получателю.
// Не сохраняется: создаётся машиной состояний и потребляется шлюзом один раз.
type Directive struct {
	ClientID  int64             `json:"client_id"`
	Recipient string            `json:"recipient"` // email или push-токен в зависимости от канала
	Channel   Channel           `json:"channel"`
	Template  TemplateKey       `json:"template"`
	Params    map[string]string `json:"params,omitempty"`
}

// DedupKey строит ключ для подавления повторной отправки напоминания в пределах дня.
func (d Directive) DedupKey(day string) string {
	return fmt.Sprintf("reminder:%d:%s:%s:%s:%s", d.ClientID, d.Template, d.Channel, d.Params["days"], day)
}
