package notification_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/taskwatch/internal/config"
	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/notification"
)

// fakeBotAPI answers getMe and sendMessage like the Bot API does.
func fakeBotAPI(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu    sync.Mutex
		chats []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"taskwatch","username":"taskwatch_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			chats = append(chats, r.FormValue("chat_id"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), chats...)
	}
}

func TestTelegramNotifierSendsToChat(t *testing.T) {
	srv, sent := fakeBotAPI(t)

	n, err := notification.NewTelegramNotifier(config.TelegramConfig{
		Token:       "test-token",
		APIEndpoint: srv.URL + "/bot%s/%s",
	}, zerolog.Nop())
	require.NoError(t, err)

	chat := int64(42)
	err = n.Notify(context.Background(), models.User{ID: 1, TelegramChatID: &chat}, models.Notification{
		ID: "n1", Kind: models.NotificationAlertCritical, Title: "Alerta crítica", Message: "tarea vencida",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, sent())

	err = n.Notify(context.Background(), models.User{ID: 2}, models.Notification{ID: "n2"})
	assert.ErrorIs(t, err, notification.ErrNoChannel)
	assert.Len(t, sent(), 1)
}

func TestTelegramNotifierRequiresToken(t *testing.T) {
	_, err := notification.NewTelegramNotifier(config.TelegramConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
