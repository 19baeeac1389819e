package service

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"studio-payments/internal/gateway"
	"studio-payments/internal/mailer"
	"studio-payments/internal/models"
)

// Email delivery categories, one per notification in the fan-out.
const (
	emailKindConfirmation = "order_confirmation"
	emailKindReceipt      = "payment_receipt"
	emailKindAlert        = "new_order_alert"
)

type detailRow struct {
	Label string
	Value string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`
<h2>Thanks for your order!</h2>
<p>Order <strong>#{{.OrderNumber}}</strong> is confirmed and heading into production.</p>
<table>
{{range .Rows}}<tr><td><strong>{{.Label}}</strong></td><td>{{.Value}}</td></tr>
{{end}}</table>
<p><a href="{{.AccessLink}}">Track your order in the dashboard</a></p>
`))

var receiptTmpl = template.Must(template.New("receipt").Parse(`
<h2>Payment received</h2>
<p>We have received your payment for order <strong>#{{.OrderNumber}}</strong>.</p>
<table>
<tr><td><strong>Amount</strong></td><td>{{.Amount}} TWD</td></tr>
<tr><td><strong>Transaction</strong></td><td>{{.TransactionID}}</td></tr>
<tr><td><strong>Date</strong></td><td>{{.Date}}</td></tr>
{{if .BilledTo}}<tr><td><strong>Billed to</strong></td><td>{{.BilledTo}}</td></tr>{{end}}
{{if .Company}}<tr><td><strong>Company</strong></td><td>{{.Company}}</td></tr>{{end}}
{{if .TaxID}}<tr><td><strong>Tax ID</strong></td><td>{{.TaxID}}</td></tr>{{end}}
</table>
`))

var alertTmpl = template.Must(template.New("alert").Parse(`
<h2>New {{.OrderType}} order</h2>
<p>Order <strong>#{{.OrderNumber}}</strong> ({{.Email}}) settled for {{.Amount}} TWD.</p>
<table>
{{range .Rows}}<tr><td><strong>{{.Label}}</strong></td><td>{{.Value}}</td></tr>
{{end}}</table>
`))

// orderDetailRows selects the production fields each category surfaces
// in its notifications. Empty fields are dropped rather than rendered
// blank.
func orderDetailRows(order models.Order) []detailRow {
	var rows []detailRow
	add := func(label, value string) {
		if value != "" {
			rows = append(rows, detailRow{Label: label, Value: value})
		}
	}

	switch o := order.(type) {
	case *models.VoiceOrder:
		add("Project", o.ProjectName)
		add("Language", o.Language)
		add("Voice", o.VoiceName)
		add("Tone", o.Tone)
		add("Use case", o.UseCase)
		add("Rights", o.Rights)
		add("Tier", o.Tier)
		if o.DurationSeconds > 0 {
			add("Duration", fmt.Sprintf("%ds", o.DurationSeconds))
		}
	case *models.MusicOrder:
		add("Project", o.ProjectName)
		add("Genre", o.Genre)
		add("Vibe", o.Vibe)
		add("Mood", o.Mood)
		add("Tempo", o.Tempo)
		add("Instruments", o.Instruments)
	case *models.OrchestraOrder:
		add("Project", o.ProjectName)
		add("Genre", o.Genre)
		add("Tier", o.TierName)
		if o.DurationMinutes > 0 {
			add("Duration", fmt.Sprintf("%d min", o.DurationMinutes))
		}
		add("Usage", o.UsageType)
	}

	return rows
}

// BuildOrderConfirmation is the customer-facing confirmation with the
// category-specific production fields and the dashboard access link.
func BuildOrderConfirmation(located *LocatedOrder, accessLink string) *mailer.Message {
	core := located.Order.Core()

	var body bytes.Buffer
	_ = confirmationTmpl.Execute(&body, struct {
		OrderNumber string
		Rows        []detailRow
		AccessLink  string
	}{
		OrderNumber: core.OrderNumber,
		Rows:        orderDetailRows(located.Order),
		AccessLink:  accessLink,
	})

	return &mailer.Message{
		To:       core.Email,
		Subject:  fmt.Sprintf("Order confirmation — #%s", core.OrderNumber),
		HTML:     body.String(),
		Category: emailKindConfirmation,
	}
}

// BuildPaymentReceipt is the customer-facing receipt with
// billing-derived fields and the settled amount.
func BuildPaymentReceipt(located *LocatedOrder, result *gateway.ChargeResult, amount int64, billing *models.BillingDetails) *mailer.Message {
	core := located.Order.Core()

	billed := core.BillingDetails
	if billing != nil {
		billed = *billing
	}

	var body bytes.Buffer
	_ = receiptTmpl.Execute(&body, struct {
		OrderNumber   string
		Amount        int64
		TransactionID string
		Date          string
		BilledTo      string
		Company       string
		TaxID         string
	}{
		OrderNumber:   core.OrderNumber,
		Amount:        amount,
		TransactionID: result.TransactionID,
		Date:          time.Now().Format("2006-01-02"),
		BilledTo:      billed.FullName,
		Company:       billed.CompanyName,
		TaxID:         billed.TaxID,
	})

	return &mailer.Message{
		To:       core.Email,
		Subject:  fmt.Sprintf("Payment receipt — #%s", core.OrderNumber),
		HTML:     body.String(),
		Category: emailKindReceipt,
	}
}

// BuildNewOrderAlert is the internal production-team alert with a
// trimmed detail set.
func BuildNewOrderAlert(located *LocatedOrder, amount int64, to string) *mailer.Message {
	core := located.Order.Core()

	rows := orderDetailRows(located.Order)
	if len(rows) > 4 {
		rows = rows[:4]
	}

	var body bytes.Buffer
	_ = alertTmpl.Execute(&body, struct {
		OrderType   string
		OrderNumber string
		Email       string
		Amount      int64
		Rows        []detailRow
	}{
		OrderType:   located.OrderType,
		OrderNumber: core.OrderNumber,
		Email:       core.Email,
		Amount:      amount,
		Rows:        rows,
	})

	return &mailer.Message{
		To:       to,
		Subject:  fmt.Sprintf("New %s order #%s", located.OrderType, core.OrderNumber),
		HTML:     body.String(),
		Category: emailKindAlert,
	}
}
