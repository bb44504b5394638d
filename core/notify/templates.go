package notify

import (
	"html/template"
)

var orderTmpl = template.Must(template.New("order").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background-color: #4CAF50; color: white; padding: 10px; text-align: center;">
    <h2>&#x1F6D2; Order Confirmation #{{.OrderID}}</h2>
  </div>
  <p>Dear Supplier,</p>
  <p>A new order has been placed and payment has been received.</p>
  <div style="margin: 20px 0; padding: 15px; background-color: #f9f9f9;">
    <h3>Order Information:</h3>
    <p><strong>Order ID:</strong> {{.OrderID}}</p>
    <p><strong>Customer Phone:</strong> {{.CustomerID}}</p>
    <p><strong>Order Date:</strong> {{.Date}}</p>
    <p><strong>Payment Reference:</strong> {{.PaymentReference}}</p>
    <p><strong>Payment Status:</strong> {{.PaymentStatus}}</p>
    {{- if .NeedsVerification}}
    <p style="color: red; font-weight: bold;">&#x26A0;&#xFE0F; PAYMENT NEEDS VERIFICATION</p>
    {{- end}}
    <h3>Delivery Address:</h3>
    <p>{{.Address}}</p>
    <h3>Order Items:</h3>
    <ul>
    {{- range .Items}}
      <li>{{.}}</li>
    {{- end}}
    </ul>
    <div style="font-size: 18px; font-weight: bold; margin-top: 15px; text-align: right;">
      <p>Total: {{.Total}}</p>
    </div>
  </div>
  <p>Please process this order as soon as possible.</p>
  <div style="background-color: #f1f1f1; padding: 10px; text-align: center; font-size: 12px;">
    <p>This is an automated message from {{.Shop}} Order System.</p>
  </div>
</div>
`))

var proofTmpl = template.Must(template.New("proof").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background-color: #4CAF50; color: white; padding: 10px; text-align: center;">
    <h2>&#x1F4B3; Payment Screenshot Received</h2>
  </div>
  <p>Dear Admin,</p>
  <p>A payment screenshot has been received for verification.</p>
  <div style="margin: 20px 0; padding: 15px; background-color: #f9f9f9;">
    <h3>Payment Information:</h3>
    <p><strong>Order ID:</strong> {{.OrderID}}</p>
    <p><strong>Customer Phone:</strong> {{.CustomerID}}</p>
    <p><strong>Amount:</strong> {{.Amount}}</p>
    <p><strong>Time:</strong> {{.Date}}</p>
    <h3>Payment Screenshot:</h3>
    <p>The payment screenshot is attached to this email.</p>
  </div>
  <p>Please verify this payment and process the order accordingly.</p>
  <div style="background-color: #f1f1f1; padding: 10px; text-align: center; font-size: 12px;">
    <p>This is an automated message from {{.Shop}} Order System.</p>
  </div>
</div>
`))

type orderView struct {
	Shop              string
	OrderID           string
	CustomerID        string
	Date              string
	PaymentReference  string
	PaymentStatus     string
	NeedsVerification bool
	Address           string
	Items             []string
	Total             string
}

type proofView struct {
	Shop       string
	OrderID    string
	CustomerID string
	Amount     string
	Date       string
}
