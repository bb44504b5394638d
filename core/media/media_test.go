package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/config"
)

func TestWhatsAppTwoStepFetch(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/media-1":
			_, _ = w.Write([]byte(`{"url":"` + srv.URL + `/download/abc","mime_type":"image/jpeg"}`))
		case "/download/abc":
			_, _ = w.Write([]byte("JPEGDATA"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewWhatsApp(config.WhatsAppConfig{AccessToken: "tok", APIBase: srv.URL}, srv.Client())
	data, err := f.Fetch(context.Background(), "media-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("JPEGDATA"), data)

	_, err = f.Fetch(context.Background(), "missing")
	assert.Equal(t, collab.KindNotFound, collab.KindOf(err))
}

func TestWhatsAppFetchWithoutToken(t *testing.T) {
	_, err := NewWhatsApp(config.WhatsAppConfig{}, nil).Fetch(context.Background(), "m")
	assert.Equal(t, collab.KindNotConfigured, collab.KindOf(err))
}

type fakeFiles struct {
	data []byte
	err  error
	id   string
}

func (f *fakeFiles) File(file *tele.File) (io.ReadCloser, error) {
	f.id = file.FileID
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func TestTelegramFetch(t *testing.T) {
	files := &fakeFiles{data: []byte("PNG")}
	data, err := NewTelegram(files).Fetch(context.Background(), "file-9")
	require.NoError(t, err)
	assert.Equal(t, "file-9", files.id)
	assert.Equal(t, []byte("PNG"), data)

	files.err = errors.New("timeout")
	_, err = NewTelegram(files).Fetch(context.Background(), "file-9")
	assert.Equal(t, collab.KindTransient, collab.KindOf(err))
}

func TestReadLimited(t *testing.T) {
	_, err := readLimited(bytes.NewReader(make([]byte, maxMediaBytes+1)))
	assert.Error(t, err)
}
