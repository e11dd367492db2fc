package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flowstack-agency/leadflow/internal/model"
	"github.com/flowstack-agency/leadflow/pkg/openai"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead intake and chat API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			return srv.Shutdown(cmd.Context())
		})

		return g.Wait()
	},
}

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/leads", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SubmissionID string `json:"submission_id"`
			FullName     string `json:"full_name"`
			Email        string `json:"email"`
			Phone        string `json:"phone"`
			BusinessName string `json:"business_name"`
			Website      string `json:"website"`
			Message      string `json:"message"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}

		sub := &model.Submission{
			ID:           body.SubmissionID,
			FullName:     body.FullName,
			Email:        body.Email,
			Phone:        body.Phone,
			BusinessName: body.BusinessName,
			Website:      body.Website,
			Message:      body.Message,
		}

		// The form handler may have stored the submission already; only
		// create the row when the id is new.
		existing, err := env.Store.GetSubmission(req.Context(), sub.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "store lookup failed")
			return
		}
		if existing == nil {
			if err := env.Store.CreateSubmission(req.Context(), sub); err != nil {
				zap.L().Error("create submission failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "store write failed")
				return
			}
		}

		result, err := env.Scorer.ProcessLead(req.Context(), sub.ID)
		if err != nil {
			zap.L().Error("lead processing failed",
				zap.String("submission_id", sub.ID),
				zap.Error(err),
			)
			writeJSON(w, http.StatusOK, map[string]any{"success": false})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":             true,
			"lead_score":          result.Score,
			"followups_scheduled": result.FollowupsScheduled,
		})
	})

	r.Post("/chat", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Message string           `json:"message"`
			History []openai.Message `json:"history"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}

		text, err := env.Assistant.Send(req.Context(), body.Message, body.History)
		if err != nil {
			zap.L().Error("chat request failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "assistant unavailable")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"text": text})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
