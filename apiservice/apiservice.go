package apiservice

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/bigjimnolan/sssaitrigger/triggerservice"
)

// Trigger runs one camera event.
type Trigger interface {
	Handle(ctx context.Context, cameraID string) triggerservice.Outcome
}

type APIService struct {
	ListenPort     string
	ServerCertPath string
	ServerKeyPath  string
	Trigger        Trigger
	Metrics        http.Handler
}

// ReservedPaths are served ahead of the trigger route, so no camera may use
// them as its id.
var ReservedPaths = []string{"healthz", "metrics"}

// Router exposes the trigger endpoint plus health and metrics.
func (api *APIService) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", api.healthHandler).Methods("GET")
	if api.Metrics != nil {
		r.Handle("/metrics", api.Metrics).Methods("GET")
	}
	r.HandleFunc("/{camera_id}", api.triggerHandler).Methods("GET")
	return r
}

// StatusCode maps an outcome to the HTTP status returned to the caller.
func StatusCode(out triggerservice.Outcome) int {
	switch {
	case errors.Is(out.Err, triggerservice.ErrUnknownCamera):
		return http.StatusNotFound
	case out.Err != nil:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func (api *APIService) triggerHandler(w http.ResponseWriter, r *http.Request) {
	cameraID := mux.Vars(r)["camera_id"]
	out := api.Trigger.Handle(r.Context(), cameraID)

	status := StatusCode(out)
	msg := out.Message
	if out.Kind == triggerservice.KindTriggered && out.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, out.Err)
	}
	log.Debug().Msgf("GET /%s -> %d %s", cameraID, status, out.Kind)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

func (api *APIService) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// Start serves until ctx is cancelled. TLS is used when both a certificate and
// key path are set.
func (api *APIService) Start(ctx context.Context) error {
	useTLS := api.ServerCertPath != "" && api.ServerKeyPath != ""
	if useTLS {
		if _, err := os.Stat(api.ServerCertPath); err != nil {
			return fmt.Errorf("cert not found at %s: %w", api.ServerCertPath, err)
		}
		if _, err := os.Stat(api.ServerKeyPath); err != nil {
			return fmt.Errorf("key not found at %s: %w", api.ServerKeyPath, err)
		}
	}

	server := &http.Server{
		Addr:              ":" + api.ListenPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	var err error
	if useTLS {
		log.Info().Msg("API running on https://0.0.0.0:" + api.ListenPort)
		err = server.ListenAndServeTLS(api.ServerCertPath, api.ServerKeyPath)
	} else {
		log.Info().Msg("API running on http://0.0.0.0:" + api.ListenPort)
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
