package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearfile/credit-cli/internal/consensus"
	"github.com/clearfile/credit-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAnalysis(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Engine, env.Store),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// analyzer is the engine surface the HTTP handlers need.
type analyzer interface {
	AnalyzeWithConsensus(ctx context.Context, documentText, userID string) (*consensus.Result, error)
}

// newRouter builds the API routes. The store may be nil, in which case the
// persistence endpoints return 404.
func newRouter(engine analyzer, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/analyze", handleAnalyze(engine, st))

	if st != nil {
		r.Get("/v1/analyses/{id}", handleGetAnalysis(st))
		r.Get("/v1/analyses", handleListAnalyses(st))
	}

	return r
}

func handleAnalyze(engine analyzer, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			DocumentText string `json:"document_text"`
			UserID       string `json:"user_id"`
			Save         bool   `json:"save"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.DocumentText == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_text is required"})
			return
		}

		result, err := engine.AnalyzeWithConsensus(req.Context(), body.DocumentText, body.UserID)
		if err != nil {
			status := http.StatusInternalServerError
			if eris.Is(err, consensus.ErrNoModelsEnabled) || eris.Is(err, consensus.ErrAllModelsFailed) {
				status = http.StatusUnprocessableEntity
			}
			zap.L().Error("analysis failed", zap.Error(err))
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		if body.Save && st != nil {
			if _, err := st.SaveAnalysis(req.Context(), result, body.UserID); err != nil {
				zap.L().Error("save analysis failed",
					zap.String("analysis_id", result.Metadata.AnalysisID),
					zap.Error(err))
			}
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func handleGetAnalysis(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rec, err := st.GetAnalysis(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			zap.L().Error("get analysis failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleListAnalyses(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recs, err := st.ListAnalyses(req.Context(), store.AnalysisFilter{
			UserID: req.URL.Query().Get("user_id"),
		})
		if err != nil {
			zap.L().Error("list analyses failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		if recs == nil {
			recs = []store.AnalysisRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
