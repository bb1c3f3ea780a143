package http

import (
	"net/http"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	mw "github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/transport/http/middleware"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Chat     ChatSvc
	Verifier identity.Verifier
	// WS: обработчик рукопожатия; сам проверяет token из query.
	WS http.HandlerFunc

	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.Verifier == nil {
		d.Verifier = identity.Trusted{}
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 60 * time.Second
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})
	ch := &ChatHandlers{Chat: d.Chat}
	r.Get("/readyz", ch.Ready)

	// WS живёт дольше любого таймаута запроса, поэтому вне группы с Timeout
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(d.RequestTimeout))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(mw.Auth(d.Verifier))

		r.Route("/api/chat", func(rt chi.Router) {
			rt.Post("/get-or-create-chat", ch.GetOrCreateChat)
			rt.Post("/send-message", ch.SendMessage)

			rt.Get("/messages/{chatId}", ch.ListMessages)
			rt.Patch("/messages/{messageId}/read", ch.MarkRead)

			rt.Get("/chats", ch.ListChats)
			rt.Get("/chats/{chatId}", ch.GetChat)
		})
	})

	return r
}
