package receipt

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"gopkg.in/gomail.v2"

	"regdesk/internal/config"
	"regdesk/internal/logger"
	"regdesk/internal/models"
)

// Mailer sends payment receipts with an encrypted check-in QR code attached.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	qr     *QRGenerator
	logger *logger.Logger
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.FromAddress,
		qr:     NewQRGenerator(cfg.QRSecret),
		logger: logger.NewLogger(),
	}
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`
<html>
<body>
  <h2>Payment received</h2>
  <p>Hi {{.Name}},</p>
  <p>We received your payment of <strong>${{printf "%.2f" .AmountPaid}}</strong> via {{.PaymentMethod}}{{if .PaidAt}} on {{.PaidAt.Format "January 2, 2006"}}{{end}}.</p>
  <table cellpadding="4">
    {{range .Lines}}
    <tr>
      <td>{{.Name}}{{if .Size}} ({{.Size}}){{end}}</td>
      <td>x{{.Quantity}}</td>
      <td align="right">${{printf "%.2f" .Amount}}</td>
    </tr>
    {{end}}
    {{if gt .DiscountAmount 0.0}}
    <tr><td>Discounts</td><td></td><td align="right">-${{printf "%.2f" .DiscountAmount}}</td></tr>
    {{end}}
    <tr><td><strong>Total</strong></td><td></td><td align="right"><strong>${{printf "%.2f" .Total}}</strong></td></tr>
  </table>
  <p>Your check-in code is attached. Show it at the door.</p>
</body>
</html>`))

type receiptLine struct {
	Name     string
	Size     string
	Quantity int
	Amount   float64
}

type receiptData struct {
	Name           string
	PaymentMethod  string
	AmountPaid     float64
	PaidAt         *time.Time
	Lines          []receiptLine
	DiscountAmount float64
	Total          float64
}

// BuildReceiptBody renders the receipt HTML for an order. Split out from
// sending so tests can assert on the rendered body.
func BuildReceiptBody(order *models.Order, name string) (string, error) {
	data := receiptData{
		Name:           name,
		PaymentMethod:  order.PaymentMethod,
		PaidAt:         order.PaymentReceivedAt,
		DiscountAmount: order.DiscountAmount(),
		Total:          order.Total(),
	}
	if order.PaidAmount != nil {
		data.AmountPaid = *order.PaidAmount
	}
	for _, li := range order.LineItems {
		if li.LineItemType == models.ItemDiscount {
			continue
		}
		data.Lines = append(data.Lines, receiptLine{
			Name:     li.Name,
			Size:     li.Size,
			Quantity: li.Quantity,
			Amount:   li.Price * float64(li.Quantity),
		})
	}

	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, data); err != nil {
		return "", err
	}
	return body.String(), nil
}

func (m *Mailer) SendReceipt(order *models.Order, email, name string) error {
	body, err := BuildReceiptBody(order, name)
	if err != nil {
		return fmt.Errorf("render receipt for order %s: %w", order.ID, err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", fmt.Sprintf("Receipt for order %s", order.ID))
	msg.SetBody("text/html", body)

	payload := QRPayload{OrderID: order.ID, AttendanceID: order.AttendanceID}
	if order.PaymentReceivedAt != nil {
		payload.PaidAt = *order.PaymentReceivedAt
	}
	png, err := m.qr.GenerateEncryptedQR(payload)
	if err != nil {
		m.logger.Warn("RECEIPT", fmt.Sprintf("qr for order %s: %v", order.ID, err))
	} else {
		msg.Attach("checkin.png", gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(png)
			return err
		}))
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send receipt for order %s: %w", order.ID, err)
	}
	m.logger.Info("RECEIPT", fmt.Sprintf("receipt for order %s sent to %s", order.ID, email))
	return nil
}
