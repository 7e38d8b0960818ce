package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"trade_engine/pkg/httpx/reply"
	"trade_engine/pkg/logx"
	"trade_engine/pkg/middlewarex"
)

const logFieldMaxLen = 4096

// NewRouter собирает chi-роутер control API со стандартной цепочкой
// middleware.
func NewRouter(s Server, allowedOrigins []string) *chi.Mux {
	masker := logx.NewSensitiveDataMasker()

	r := chi.NewRouter()

	r.Use(middlewarex.Recovery)
	r.Use(middlewarex.TraceID)
	r.Use(middlewarex.RequestLogging(masker, logFieldMaxLen))
	r.Use(middlewarex.ResponseLogging(masker, logFieldMaxLen))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-Id"},
		ExposedHeaders: []string{"X-Trace-Id"},
		MaxAge:         300,
	}))

	s.RegisterRoutes(r)

	return r
}

func (s Server) RegisterRoutes(r chi.Router) { //nolint:funlen
	r.Route("/", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/status", handler(s.getV1Status))
			r.Post("/reconcile", handler(s.postV1Reconcile))

			r.Route("/sendall", func(r chi.Router) {
				r.Post("/", handler(s.postV1SendAll))
				r.Delete("/", handler(s.deleteV1SendAll))
			})

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", handler(s.getV1Templates))
				r.Post("/", handler(s.postV1Template))
				r.Get("/{id}", handler(s.getV1Template))
				r.Put("/{id}", handler(s.putV1Template))
				r.Delete("/{id}", handler(s.deleteV1Template))
				r.Post("/{id}/decline", handler(s.postV1Decline))
			})

			r.Route("/trades", func(r chi.Router) {
				r.Get("/pending", handler(s.getV1PendingTrades))
				r.Get("/finalized", handler(s.getV1FinalizedTrades))
			})

			r.Route("/exclusions", func(r chi.Router) {
				r.Get("/", handler(s.getV1Exclusions))
				r.Delete("/{userId}", handler(s.deleteV1Exclusion))
			})

			r.Route("/vault", func(r chi.Router) {
				r.Put("/password", handler(s.putV1Password))
				r.Delete("/password", handler(s.deleteV1Password))
				r.Post("/secret", handler(s.postV1Secret))
				r.Delete("/secret", handler(s.deleteV1Secret))
			})
		})
	})
}

func handler(f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			reply.Error(r.Context(), w, err)
		}
	}
}
