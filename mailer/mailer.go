// Package mailer dispatches the fulfillment email after a successful
// payment. The core imposes no retry contract on it: a failed send is
// logged by the caller and never rolls back payment state.
package mailer

import (
	"context"

	"github.com/wizardl22111-coder/leve1up-sub000/model"
)

// Mailer renders and sends the order-confirmation email. downloadLinks maps
// product ids to freshly issued download URLs. The boolean mirrors what the
// webhook needs to know: did the customer get the mail or not.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order *model.Order, downloadLinks map[int]string) (bool, error)
}

// NopMailer is used when no mail provider is configured; the customer still
// has the gateway's own receipt and the success page.
type NopMailer struct{}

func (NopMailer) SendOrderConfirmation(ctx context.Context, order *model.Order, downloadLinks map[int]string) (bool, error) {
	return false, nil
}
