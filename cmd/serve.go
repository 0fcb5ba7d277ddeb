package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/metrics"
	"github.com/cellarworks/enrich-cli/internal/model"
	"github.com/cellarworks/enrich-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enrichment HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
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
			Handler: newAPIHandler(env, cfg.Enrich.MaxConcurrentProducts),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newAPIHandler builds the HTTP routes over an initialized environment.
// maxSessions caps simultaneous enrichment sessions across all requests,
// the same cap batch runs apply.
func newAPIHandler(env *enrichEnv, maxSessions int) http.Handler {
	if maxSessions < 1 {
		maxSessions = 1
	}
	sem := make(chan struct{}, maxSessions)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/enrich", handleEnrich(env, sem))
		r.Get("/products", handleListProducts(env.Store))
		r.Get("/products/{fingerprint}", handleGetProduct(env.Store))
		r.Get("/products/{fingerprint}/sessions", handleListSessions(env.Store))
		r.Get("/sessions/{id}", handleGetSession(env.Store))
	})

	return r
}

type enrichRequest struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
}

// handleEnrich accepts an enrichment request and runs it asynchronously;
// the session is retrievable afterwards via the audit endpoints. Accepted
// requests queue on sem so at most cap(sem) sessions run at once.
func handleEnrich(env *enrichEnv, sem chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enrichRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.Category == "" {
			req.Category = string(model.CategoryWhiskey)
		}

		cat := model.Category(req.Category)
		fingerprint := model.Fingerprint(req.Name, req.Brand, cat)

		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			rec, err := env.Store.GetProduct(ctx, fingerprint)
			if err != nil {
				zap.L().Error("load product failed", zap.String("fingerprint", fingerprint), zap.Error(err))
				return
			}
			if rec == nil {
				rec = &model.ProductRecord{
					Fingerprint: fingerprint,
					Name:        req.Name,
					Brand:       req.Brand,
					Category:    cat,
					Fields:      model.FieldMap{},
					Status:      model.StatusSkeleton,
					CreatedAt:   time.Now().UTC(),
				}
			}

			sess, runErr := env.Pipeline.Run(ctx, rec)
			if sess != nil {
				if err := env.Store.SaveSession(ctx, sess); err != nil {
					zap.L().Warn("save session failed", zap.Error(err))
				}
			}
			if runErr != nil {
				zap.L().Error("enrichment failed",
					zap.String("fingerprint", fingerprint),
					zap.Error(runErr),
				)
				return
			}
			if _, err := env.Store.SaveProduct(ctx, rec); err != nil {
				zap.L().Error("save product failed", zap.String("fingerprint", fingerprint), zap.Error(err))
				return
			}
			zap.L().Info("enrichment complete",
				zap.String("fingerprint", fingerprint),
				zap.String("status", string(rec.Status)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"fingerprint": fingerprint,
		})
	}
}

func handleGetProduct(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := st.GetProduct(r.Context(), chi.URLParam(r, "fingerprint"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleListProducts(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.ProductFilter{
			Category: model.Category(q.Get("category")),
			Status:   model.Status(q.Get("status")),
			Limit:    intQuery(q.Get("limit"), 50),
			Offset:   intQuery(q.Get("offset"), 0),
		}
		recs, err := st.ListProducts(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": recs, "count": len(recs)})
	}
}

func handleListSessions(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := st.ListSessions(r.Context(), store.SessionFilter{
			Fingerprint: chi.URLParam(r, "fingerprint"),
			Limit:       intQuery(r.URL.Query().Get("limit"), 20),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
	}
}

func handleGetSession(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := st.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if sess == nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intQuery(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
