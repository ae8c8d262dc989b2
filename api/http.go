// Package api wires the Registry into the five HTTP endpoints named in §6:
// POST /jobs, GET /jobs/{job_id}, POST /jobs/{job_id}/retry (all
// shared-secret gated), plus the unauthenticated GET /healthz and
// GET /version.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/log"
	"github.com/livepeer/clip-job-server/middleware"
	"github.com/livepeer/clip-job-server/registry"
)

// ListenAndServe runs the HTTP server until ctx is cancelled, then drains it
// with a bounded grace period, mirroring the teacher's server lifecycle.
func ListenAndServe(ctx context.Context, cli config.Cli, reg *registry.Registry) error {
	router := NewRouter(cli, reg)
	server := http.Server{Addr: cli.HTTPAddress, Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoRequestID(
		"Starting clip job server",
		"version", config.Version,
		"host", cli.HTTPAddress,
	)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// NewRouter builds the router; split out from ListenAndServe so tests can
// exercise routes without binding a socket.
func NewRouter(cli config.Cli, reg *registry.Registry) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()
	authed := func(h httprouter.Handle) httprouter.Handle {
		return withLogging(middleware.IsAuthorized(cli.APIToken, h))
	}

	h := New(reg, cli.MaxQueueDepth)

	router.POST("/jobs", authed(h.CreateJob()))
	router.GET("/jobs/:job_id", authed(h.GetJob()))
	router.POST("/jobs/:job_id/retry", authed(h.RetryJob()))

	router.GET("/healthz", withLogging(Healthz()))
	router.GET("/version", withLogging(VersionHandler()))

	return router
}
