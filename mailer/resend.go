package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/wizardl22111-coder/leve1up-sub000/model"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendMailer sends the confirmation mail through the Resend REST API.
type ResendMailer struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type emailItem struct {
	Name         string
	UnitPrice    float64
	Currency     string
	DownloadLink string
}

type emailData struct {
	Items    []emailItem
	Amount   float64
	Currency string
	Year     int
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html lang="en">
<body style="font-family: 'Segoe UI', Tahoma, Arial, sans-serif; background: #f5f5f5; padding: 20px;">
  <div style="max-width: 600px; margin: 0 auto; background: white; border-radius: 10px; overflow: hidden;">
    <div style="background: linear-gradient(135deg, #10b981 0%, #059669 100%); padding: 30px; text-align: center;">
      <h1 style="color: white; margin: 0;">Payment received!</h1>
      <p style="color: rgba(255,255,255,0.9); margin: 10px 0 0 0;">Thank you for your purchase at Leve1Up</p>
    </div>
    <div style="padding: 30px;">
      <p style="font-size: 16px; color: #333;">Your payment went through. Download your products below:</p>
      {{range .Items}}
      <div style="background: #f9f9f9; padding: 15px; margin: 10px 0; border-radius: 8px;">
        <h3 style="margin: 0 0 10px 0; color: #333;">{{.Name}}</h3>
        <p style="margin: 5px 0; color: #666;">{{.UnitPrice}} {{.Currency}}</p>
        {{if .DownloadLink}}
        <a href="{{.DownloadLink}}" style="display: inline-block; margin-top: 10px; padding: 10px 20px; background: #10b981; color: white; text-decoration: none; border-radius: 6px;">Download</a>
        {{end}}
      </div>
      {{end}}
      <div style="background: #f0fdf4; padding: 20px; border-radius: 8px; margin: 20px 0;">
        <span style="font-size: 18px; font-weight: bold;">Total: {{.Amount}} {{.Currency}}</span>
      </div>
      <p style="font-size: 14px; color: #666;">Need help? Reach us at support@leve1up.store</p>
    </div>
    <div style="background: #f9fafb; padding: 20px; text-align: center; border-top: 1px solid #e5e7eb;">
      <p style="margin: 0; font-size: 12px; color: #9ca3af;">© {{.Year}} Leve1Up. All rights reserved.</p>
    </div>
  </div>
</body>
</html>`))

func (m *ResendMailer) SendOrderConfirmation(ctx context.Context, order *model.Order, downloadLinks map[int]string) (bool, error) {
	if order.CustomerEmail == "" {
		return false, fmt.Errorf("order %s has no customer email", order.ID)
	}

	data := emailData{
		Amount:   order.Amount,
		Currency: order.Currency,
		Year:     time.Now().Year(),
	}
	for _, item := range order.Items {
		data.Items = append(data.Items, emailItem{
			Name:         item.Name,
			UnitPrice:    item.UnitPrice,
			Currency:     order.Currency,
			DownloadLink: downloadLinks[item.ProductID],
		})
	}

	var html bytes.Buffer
	if err := confirmationTmpl.Execute(&html, data); err != nil {
		return false, err
	}

	payload, err := json.Marshal(map[string]any{
		"from":    m.from,
		"to":      []string{order.CustomerEmail},
		"subject": "Payment confirmation - Leve1Up",
		"html":    html.String(),
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("resend returned status %d", resp.StatusCode)
	}
	return true, nil
}
