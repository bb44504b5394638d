package conversation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/orderbot/core/session"
)

// Texts use WhatsApp markup: *bold* and _italic_.

func (e *Engine) money(d decimal.Decimal) string {
	return e.opts.CurrencySymbol + d.String()
}

func (e *Engine) payLink(paymentOrderID string) string {
	return e.opts.BaseURL + "/pay/" + paymentOrderID
}

func (e *Engine) welcomeText() string {
	return fmt.Sprintf("🌟 *Welcome to %s!*\n\n"+
		"Your trusted source for premium cooking oils.\n\n"+
		"Type *MENU* to see our products\n"+
		"Type *HELP* for assistance", e.opts.ShopName)
}

func (e *Engine) helpText() string {
	return "🛎️ *How can we help?*\n\n" +
		"• Type *MENU* to order\n" +
		"• Contact " + e.opts.SupportEmail
}

func (e *Engine) menuText() string {
	return fmt.Sprintf("🏪 *%s Menu:*\n\n%s\n\nReply with item numbers (e.g. *1,3*)",
		e.opts.ShopName, e.catalog.Listing(e.opts.CurrencySymbol, e.opts.Unit))
}

const (
	invalidSelectionText = "❌ Invalid selection. Please reply with numbers like *1,3*"
	invalidQuantityText  = "❌ Please enter a valid quantity (e.g. 2.5)"
	confirmOrCancelText  = "Please reply *confirm* or *cancel*"
	cancelledText        = "Order cancelled. Type *MENU* to start again"
	paymentErrorText     = "⚠️ Payment system error. Please try again later."
	addressPromptText    = "Please share your delivery address:"
	fallbackText         = "Sorry, I didn't understand that.\n\n" +
		"Type *MENU* to see our products\n" +
		"Type *HELP* for assistance"
	paidWithoutProofText = "Please share your payment screenshot for verification.\n\n" +
		"Upload the screenshot image showing your payment confirmation."
)

func (e *Engine) quantityPrompt(li session.LineItem) string {
	return fmt.Sprintf("How many %s of *%s*? (%s/%s)",
		e.unitName(), li.Item.Name, e.money(li.Item.UnitPrice), e.opts.Unit)
}

func (e *Engine) unitName() string {
	if strings.EqualFold(e.opts.Unit, "L") {
		return "liters"
	}
	return e.opts.Unit
}

func (e *Engine) summaryText(s *session.Session) string {
	var b strings.Builder
	b.WriteString("📝 *Order Summary*\n\n")
	for _, li := range s.Items {
		fmt.Fprintf(&b, "- %s x %s%s = %s\n", li.Item.Name, li.Quantity.String(), e.opts.Unit, e.money(li.Subtotal))
	}
	fmt.Fprintf(&b, "\n*Total: %s*\n\n", e.money(s.Total))
	b.WriteString("Reply:\n")
	b.WriteString("*confirm* - To proceed with payment\n")
	b.WriteString("*cancel* - To start over")
	return b.String()
}

func (e *Engine) paymentRequestText(s *session.Session) string {
	return fmt.Sprintf("💳 *Payment Request*\n\n"+
		"Total: %s\n\n"+
		"Pay securely here (UPI option available):\n"+
		"%s\n\n"+
		"After payment, please share your payment screenshot.",
		e.money(s.Total), e.payLink(s.PaymentOrderID))
}

func (e *Engine) paymentReminderText(s *session.Session) string {
	return fmt.Sprintf("Please complete the payment of %s (UPI option available):\n\n"+
		"%s\n\n"+
		"After payment, please share your payment screenshot.",
		e.money(s.Total), e.payLink(s.PaymentOrderID))
}

func (e *Engine) proofReceivedText(s *session.Session) string {
	return fmt.Sprintf("✅ Payment screenshot received for %s!\n\n"+
		"Payment under verification. Your order will be delivered soon.\n\n"+
		addressPromptText, e.money(s.Total))
}

func (e *Engine) completedText(s *session.Session) string {
	return fmt.Sprintf("🎉 *Order Complete!*\n\n"+
		"We'll deliver to:\n%s\n\n"+
		"Order ID: %s\n"+
		"Thank you for your business!", s.Address, s.OrderID)
}
