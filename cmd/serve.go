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
	"golang.org/x/time/rate"

	"github.com/sells-group/invoice-memory/internal/engine"
	"github.com/sells-group/invoice-memory/internal/model"
	"github.com/sells-group/invoice-memory/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP facade for decisions and corrections",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := engine.New(st, nil)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(eng, st),
		}

		shutdownOnDone(ctx, srv, 10*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownOnDone drains in-flight requests when ctx is canceled. The signal
// context is already canceled at that point, so Shutdown runs against its
// own deadline instead.
func shutdownOnDone(ctx context.Context, srv *http.Server, timeout time.Duration) {
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

func newRouter(eng *engine.Engine, st store.Store) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(rateLimit(rate.Limit(cfg.Server.RequestsPerSec), cfg.Server.Burst))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/invoices", func(w http.ResponseWriter, req *http.Request) {
			var inv model.ExtractedInvoice
			if err := json.NewDecoder(req.Body).Decode(&inv); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if err := inv.Validate(); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			res, err := eng.Process(req.Context(), inv)
			if err != nil {
				zap.L().Error("process failed", zap.String("invoice_id", inv.InvoiceID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "processing failed")
				return
			}
			writeJSON(w, http.StatusOK, res)
		})

		r.Post("/corrections", func(w http.ResponseWriter, req *http.Request) {
			var corr model.HumanCorrection
			if err := json.NewDecoder(req.Body).Decode(&corr); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if corr.InvoiceID == "" || corr.Vendor == "" {
				writeError(w, http.StatusBadRequest, "invoiceId and vendor are required")
				return
			}

			updates, err := eng.Learn(req.Context(), corr)
			if err != nil {
				zap.L().Error("learn failed", zap.String("invoice_id", corr.InvoiceID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "learning failed")
				return
			}
			if updates == nil {
				updates = []string{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"memoryUpdates": updates})
		})

		r.Get("/invoices/{id}/audit", func(w http.ResponseWriter, req *http.Request) {
			entries, err := st.ListAudit(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				zap.L().Error("audit lookup failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "audit lookup failed")
				return
			}
			if entries == nil {
				entries = []model.AuditEntry{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"auditTrail": entries})
		})

		r.Get("/vendors/{vendor}/memories", func(w http.ResponseWriter, req *http.Request) {
			memories, err := st.GetVendorMemories(req.Context(), chi.URLParam(req, "vendor"), 0)
			if err != nil {
				zap.L().Error("memory lookup failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "memory lookup failed")
				return
			}
			if memories == nil {
				memories = []model.MemoryEntry{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
		})
	})

	return r
}

// rateLimit applies a process-wide token bucket to all requests.
func rateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
