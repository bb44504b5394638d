package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/session"
)

const defaultSMTPTimeout = 30 * time.Second

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTP sends HTML emails through an authenticated relay such as Gmail.
type SMTP struct {
	cfg  config.EmailConfig
	opts Options
	send sendFunc
	now  func() time.Time
}

// NewSMTP builds a notifier for the supplier address in cfg.
func NewSMTP(cfg config.EmailConfig, opts Options) *SMTP {
	s := &SMTP{cfg: cfg, opts: opts, now: time.Now}
	s.send = s.dialAndSend
	return s
}

// Configured reports whether credentials and a recipient are present.
func (s *SMTP) Configured() bool {
	return s.cfg.User != "" && s.cfg.Password != "" && s.cfg.Supplier != ""
}

// SendOrderNotification implements Notifier.
func (s *SMTP) SendOrderNotification(ctx context.Context, order session.Order) error {
	items := make([]string, 0, len(order.Items))
	for _, li := range order.Items {
		items = append(items, fmt.Sprintf("%s - %s%s × %s = %s",
			li.Item.Name, li.Quantity.String(), s.opts.Unit, s.money(li.Item.UnitPrice.String()), s.money(li.Subtotal.String())))
	}
	view := orderView{
		Shop:              s.opts.ShopName,
		OrderID:           order.OrderID,
		CustomerID:        order.CustomerID,
		Date:              s.stamp(order.CompletedAt),
		PaymentReference:  orDefault(order.PaymentReference, "Not provided"),
		PaymentStatus:     orDefault(order.PaymentStatus, "Unknown"),
		NeedsVerification: order.NeedsVerification,
		Address:           order.Address,
		Items:             items,
		Total:             s.money(order.Total.String()),
	}
	var body bytes.Buffer
	if err := orderTmpl.Execute(&body, view); err != nil {
		return fmt.Errorf("notify: render order email: %w", err)
	}
	subject := fmt.Sprintf("🛒 New Order #%s - %s", order.OrderID, view.Total)
	msg, err := s.compose(subject, body.Bytes(), nil)
	if err != nil {
		return err
	}
	return s.deliver(ctx, "order", msg)
}

// SendPaymentProof implements Notifier.
func (s *SMTP) SendPaymentProof(ctx context.Context, proof Proof) error {
	view := proofView{
		Shop:       s.opts.ShopName,
		OrderID:    proof.OrderID,
		CustomerID: proof.CustomerID,
		Amount:     s.money(proof.Amount.String()),
		Date:       s.stamp(proof.ReceivedAt),
	}
	var body bytes.Buffer
	if err := proofTmpl.Execute(&body, view); err != nil {
		return fmt.Errorf("notify: render proof email: %w", err)
	}
	subject := fmt.Sprintf("💳 Payment Screenshot for Order #%s - %s", proof.OrderID, view.Amount)
	var att *attachment
	if len(proof.Image) > 0 {
		att = &attachment{name: AttachmentName(proof.OrderID), contentType: "image/jpeg", data: proof.Image}
	}
	msg, err := s.compose(subject, body.Bytes(), att)
	if err != nil {
		return err
	}
	return s.deliver(ctx, "payment_proof", msg)
}

type attachment struct {
	name        string
	contentType string
	data        []byte
}

func (s *SMTP) compose(subject string, html []byte, att *attachment) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.from()); err != nil {
		return nil, fmt.Errorf("notify: from address: %w", err)
	}
	if err := m.To(s.cfg.Supplier); err != nil {
		return nil, fmt.Errorf("notify: supplier address: %w", err)
	}
	m.Subject(subject)
	m.SetDateWithValue(s.now())
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextHTML, string(html))
	if att != nil {
		err := m.AttachReader(att.name, bytes.NewReader(att.data), mail.WithFileContentType(mail.ContentType(att.contentType)))
		if err != nil {
			return nil, fmt.Errorf("notify: attachment: %w", err)
		}
	}
	return m, nil
}

// deliver sends msg through the relay; ctx bounds the whole exchange.
func (s *SMTP) deliver(ctx context.Context, op string, msg *mail.Msg) error {
	if !s.Configured() {
		return collab.New("smtp", op, collab.KindNotConfigured, errors.New("email credentials or supplier missing"))
	}
	if err := s.send(ctx, msg); err != nil {
		return classifySMTP(op, err)
	}
	return nil
}

func (s *SMTP) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Password),
		mail.WithTimeout(defaultSMTPTimeout),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if s.cfg.Port > 0 {
		opts = append(opts, mail.WithPort(s.cfg.Port))
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func classifySMTP(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return collab.New("smtp", op, collab.KindTransient, err)
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 535 || tpErr.Code == 534 || tpErr.Code == 530:
			return &collab.Error{Service: "smtp", Op: op, Kind: collab.KindAuthExpired, Status: tpErr.Code, Err: err}
		case tpErr.Code >= 400 && tpErr.Code < 500:
			return &collab.Error{Service: "smtp", Op: op, Kind: collab.KindTransient, Status: tpErr.Code, Err: err}
		default:
			return &collab.Error{Service: "smtp", Op: op, Kind: collab.KindOther, Status: tpErr.Code, Err: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return collab.New("smtp", op, collab.KindTransient, err)
	}
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		if sendErr.IsTemp() {
			return collab.New("smtp", op, collab.KindTransient, err)
		}
		return collab.New("smtp", op, collab.KindOther, err)
	}
	return collab.New("smtp", op, collab.KindOther, err)
}

func (s *SMTP) from() string {
	if s.cfg.From != "" {
		return s.cfg.From
	}
	return s.cfg.User
}

func (s *SMTP) money(amount string) string {
	return s.opts.CurrencySymbol + amount
}

func (s *SMTP) stamp(t time.Time) string {
	if t.IsZero() {
		t = s.now()
	}
	return t.Format("02 Jan 2006 15:04 MST")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
