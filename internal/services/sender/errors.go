package sender

import (
	"fmt"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// DeliveryError: неудачная доставка одному получателю. Повторов нет.
type DeliveryError struct {
	Channel   models.Channel
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
