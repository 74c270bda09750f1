package main

import (
	"net/http"

	"github.com/angeloszaimis/failover-router/internal/handler"
	"github.com/angeloszaimis/failover-router/internal/metrics"
	"github.com/angeloszaimis/failover-router/internal/registry"
)

func setupRouter(routeHandler *handler.RouteHandler, reg *registry.Registry, collector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/route", routeHandler.ServeHTTP)
	mux.HandleFunc("/v1/providers", handler.ProvidersHandler(reg))
	mux.HandleFunc("/metrics", collector.Handler())

	return mux
}
