package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Auth      Authenticator
	Payments  PaymentVerifier
	Tips      TipVerifier
	Chat      ChatVerifier
	Addresses AddressLister
	Hub       *Hub
	DB        Pinger

	AllowedOrigins []string
	Log            *zap.Logger
}

// NewRouter wires every route.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", Healthz())
	r.Get("/readyz", Readyz(d.DB, log))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/challenge", Challenge())
		r.Post("/wallet", WalletLogin(d.Auth, log))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Auth, log))
			r.Get("/session", GetSession())
			r.Post("/logout", Logout(d.Auth, log))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Auth, log))
		r.Post("/payments/verify", VerifyPayment(d.Payments, log))
		r.Get("/payments/active", ActivePayment(d.Payments, log))
		r.Post("/tips/verify", VerifyTip(d.Tips, log))
		r.Post("/chat/verify", VerifyChat(d.Chat, log))
		r.Get("/addresses/{address}/transactions", AddressTransactions(d.Addresses, log))
	})

	r.Get("/streams/{streamId}/tips", ListStreamTips(d.Tips, log))
	if d.Hub != nil {
		r.Get("/ws/streams/{streamId}", ServeStreamWs(d.Hub))
	}

	return r
}
