package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/m3rciful/orderbot/core/catalog"
	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/session"
)

type captured struct {
	calls int
	raw   []byte
}

func newTestSMTP(t *testing.T, sendErr error) (*SMTP, *captured) {
	t.Helper()
	c := &captured{}
	s := NewSMTP(config.EmailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		User:     "bot@oilfacts.com",
		Password: "app-password",
		Supplier: "supplier@example.com",
	}, Options{ShopName: "OilFacts", CurrencySymbol: "₹", Unit: "L"})
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	s.send = func(_ context.Context, msg *mail.Msg) error {
		c.calls++
		var buf bytes.Buffer
		_, err := msg.WriteTo(&buf)
		require.NoError(t, err)
		c.raw = buf.Bytes()
		return sendErr
	}
	return s, c
}

type parsedMail struct {
	from        string
	to          string
	subject     string
	html        string
	attachments map[string][]byte
}

func parseMail(t *testing.T, raw []byte) parsedMail {
	t.Helper()
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	from, err := netmail.ParseAddress(msg.Header.Get("From"))
	require.NoError(t, err)
	to, err := netmail.ParseAddress(msg.Header.Get("To"))
	require.NoError(t, err)

	p := parsedMail{from: from.Address, to: to.Address, subject: subject, attachments: map[string][]byte{}}
	walkPart(t, &p, msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), "", msg.Body)
	return p
}

func walkPart(t *testing.T, p *parsedMail, contentType, encoding, filename string, body io.Reader) {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			require.NoError(t, err)
			walkPart(t, p, part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part.FileName(), part)
		}
	}
	switch strings.ToLower(encoding) {
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	}
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	switch {
	case filename != "":
		p.attachments[filename] = data
	case mediaType == "text/html":
		p.html += string(data)
	}
}

func sampleOrder() session.Order {
	sunflower := catalog.Item{ID: 1, Name: "Sunflower Oil", UnitPrice: decimal.NewFromInt(120)}
	return session.Order{
		OrderID:           "OIL-123456",
		CustomerID:        "919876543210",
		Items:             []session.LineItem{session.LineItem{Item: sunflower}.WithQuantity(decimal.NewFromInt(2))},
		Total:             decimal.NewFromInt(240),
		Currency:          "INR",
		Address:           "12 MG Road <Bengaluru>",
		PaymentStatus:     session.PaymentPendingVerification,
		NeedsVerification: true,
	}
}

func TestSendOrderNotification(t *testing.T) {
	s, c := newTestSMTP(t, nil)
	require.NoError(t, s.SendOrderNotification(context.Background(), sampleOrder()))
	require.Equal(t, 1, c.calls)

	m := parseMail(t, c.raw)
	assert.Equal(t, "bot@oilfacts.com", m.from)
	assert.Equal(t, "supplier@example.com", m.to)
	assert.Equal(t, "🛒 New Order #OIL-123456 - ₹240", m.subject)
	assert.Empty(t, m.attachments)
	assert.Contains(t, m.html, "Sunflower Oil - 2L × ₹120 = ₹240")
	assert.Contains(t, m.html, "PAYMENT NEEDS VERIFICATION")
	assert.Contains(t, m.html, "12 MG Road &lt;Bengaluru&gt;")
	assert.Contains(t, m.html, "Not provided")
	assert.Contains(t, m.html, "Total: ₹240")
}

func TestOrderNotificationWithoutVerificationFlag(t *testing.T) {
	s, c := newTestSMTP(t, nil)
	order := sampleOrder()
	order.NeedsVerification = false
	order.PaymentReference = "pay_123"
	require.NoError(t, s.SendOrderNotification(context.Background(), order))

	m := parseMail(t, c.raw)
	assert.NotContains(t, m.html, "NEEDS VERIFICATION")
	assert.Contains(t, m.html, "pay_123")
}

func TestSendPaymentProofAttachesScreenshot(t *testing.T) {
	s, c := newTestSMTP(t, nil)
	image := []byte(strings.Repeat("\xff\xd8jpeg-bytes", 20))
	require.NoError(t, s.SendPaymentProof(context.Background(), Proof{
		OrderID:    "OIL-123456",
		CustomerID: "919876543210",
		Amount:     decimal.NewFromInt(480),
		Image:      image,
	}))

	m := parseMail(t, c.raw)
	assert.Equal(t, "💳 Payment Screenshot for Order #OIL-123456 - ₹480", m.subject)
	assert.Contains(t, m.html, "The payment screenshot is attached")
	assert.Contains(t, m.html, "₹480")
	require.Contains(t, m.attachments, "payment-screenshot-OIL-123456.jpg")
	assert.Equal(t, image, m.attachments["payment-screenshot-OIL-123456.jpg"])
}

func TestSendPaymentProofWithoutImage(t *testing.T) {
	s, c := newTestSMTP(t, nil)
	require.NoError(t, s.SendPaymentProof(context.Background(), Proof{OrderID: "OIL-1", Amount: decimal.NewFromInt(10)}))
	assert.Empty(t, parseMail(t, c.raw).attachments)
}

func TestSendWithoutCredentials(t *testing.T) {
	s := NewSMTP(config.EmailConfig{Host: "smtp.example.com", Port: 587}, Options{})
	assert.False(t, s.Configured())
	err := s.SendOrderNotification(context.Background(), sampleOrder())
	assert.Equal(t, collab.KindNotConfigured, collab.KindOf(err))
}

func TestSMTPErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind collab.Kind
	}{
		{&textproto.Error{Code: 535, Msg: "bad credentials"}, collab.KindAuthExpired},
		{&textproto.Error{Code: 421, Msg: "try later"}, collab.KindTransient},
		{&textproto.Error{Code: 550, Msg: "no such user"}, collab.KindOther},
		{fmt.Errorf("auth: %w", &textproto.Error{Code: 534, Msg: "application-specific password required"}), collab.KindAuthExpired},
		{&mail.SendError{Reason: mail.ErrSMTPRcptTo}, collab.KindOther},
		{errors.New("boom"), collab.KindOther},
	}
	for _, tc := range cases {
		s, _ := newTestSMTP(t, tc.err)
		err := s.SendOrderNotification(context.Background(), sampleOrder())
		assert.Equal(t, tc.kind, collab.KindOf(err), tc.err.Error())
	}
}

func TestDeliverHonoursContext(t *testing.T) {
	s, _ := newTestSMTP(t, nil)
	s.send = func(ctx context.Context, _ *mail.Msg) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.SendOrderNotification(ctx, sampleOrder())
	assert.Equal(t, collab.KindTransient, collab.KindOf(err))
}

func TestDialFailureIsTransient(t *testing.T) {
	s := NewSMTP(config.EmailConfig{
		Host:     "127.0.0.1",
		Port:     1,
		User:     "bot@oilfacts.com",
		Password: "app-password",
		Supplier: "supplier@example.com",
	}, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.SendOrderNotification(ctx, sampleOrder())
	require.Error(t, err)
	assert.Equal(t, collab.KindTransient, collab.KindOf(err))
}
