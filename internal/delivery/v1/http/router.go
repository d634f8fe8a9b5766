package http

import (
	"net/http"

	_ "github.com/DRSN-tech/vision-service/docs" // регистрация OpenAPI-описания
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

// Init регистрирует маршруты. metrics может быть nil.
func (r *Router) Init(recUC usecase.RecognitionUC, trUC usecase.TrainingUC, maxUploadSize int64, metrics http.Handler) {
	r.router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		WriteSuccess(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if metrics != nil {
		r.router.Method(http.MethodGet, "/metrics", metrics)
	}
	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.router.Route("/api/v1", func(v1 chi.Router) {
		recHandler := NewRecognitionHandler(recUC, maxUploadSize, r.logger)
		trHandler := NewTrainingHandler(trUC, r.logger)

		v1.Get("/model-info", recHandler.modelInfo)
		v1.Post("/reload", trHandler.reloadAll)
		registerSellerRoutes(v1, recHandler, trHandler)
	})
}

func registerSellerRoutes(router chi.Router, recHandler *RecognitionHandler, trHandler *TrainingHandler) {
	router.Route("/sellers/{"+sellerIDParam+"}", func(sr chi.Router) {
		sr.Post("/train", trHandler.train)
		sr.Get("/training-status", trHandler.trainingStatus)
		sr.Post("/reload", trHandler.reload)
		sr.Post("/detect", recHandler.detect)
		sr.Get("/search", recHandler.search)
	})
}
