package model

import "time"

// Order statuses. An order is born pending (or completed for free orders),
// the payment gateway moves it to paid or failed, fulfillment moves paid to
// completed, and a manual refund moves paid to refunded. completed, failed
// and refunded are terminal.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

type OrderItem struct {
	ProductID   int     `json:"product_id"`
	Name        string  `json:"name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	DownloadRef string  `json:"download_ref,omitempty"` // link to the purchased file
}

type Order struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id,omitempty"` // client correlation id, created before payment
	PaymentID     string            `json:"payment_id,omitempty"` // gateway id, attached once the gateway accepts the intent
	Status        string            `json:"status"`
	Amount        float64           `json:"amount"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	CustomerName  string            `json:"customer_name,omitempty"`
	Items         []OrderItem       `json:"items"`
	CreatedAt     time.Time         `json:"created_at"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

var transitions = map[string][]string{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {StatusCompleted, StatusRefunded},
}

// CanTransition reports whether the status machine allows from -> to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Fulfilled reports whether the order grants access to its files: paid,
// completed, or a zero-amount (free) order.
func (o *Order) Fulfilled() bool {
	return o.Status == StatusPaid || o.Status == StatusCompleted || o.Amount == 0
}

// HasProduct reports whether the order contains the given product.
func (o *Order) HasProduct(productID int) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}
