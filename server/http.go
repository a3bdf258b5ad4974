package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpcmux/rpcmux/common"
	"github.com/rpcmux/rpcmux/rpcmux"
	"github.com/rs/zerolog"
)

const maxRequestBodySize = 4 * 1024 * 1024

type HttpServer struct {
	logger *zerolog.Logger
	app    *rpcmux.App

	server        *http.Server
	metricsServer *http.Server
}

func NewHttpServer(logger *zerolog.Logger, app *rpcmux.App) *HttpServer {
	lg := logger.With().Str("component", "http").Logger()
	s := &HttpServer{
		logger: &lg,
		app:    app,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRpc)
	mux.HandleFunc("/healthcheck", s.handleHealthcheck)
	mux.HandleFunc("/ws", s.handleWebSocket)

	cfg := app.Config
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.HttpHost, cfg.Server.HttpPort),
		Handler: mux,
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port),
			Handler: metricsMux,
		}
	}

	return s
}

func (s *HttpServer) handleRpc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to read request body")
		s.writeRpcError(w, nil, NewErrReadBody(err))
		return
	}

	req := common.NewNormalizedRequest(body)
	req.ApplyDirectivesFromHttp(r.Header)

	resp, err := s.app.Dispatcher.Forward(r.Context(), req)
	if err != nil {
		s.logger.Debug().Err(err).Object("req", req).Msg("request failed")
		s.writeRpcError(w, req.Id(), err)
		return
	}

	out, err := common.SonicCfg.Marshal(resp)
	if err != nil {
		s.writeRpcError(w, req.Id(), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(out); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

// writeRpcError maps internal error kinds to HTTP status codes and renders a
// json-rpc error envelope so clients always get a parsable body.
func (s *HttpServer) writeRpcError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusInternalServerError
	var httpErr common.ErrorWithStatusCode
	if errors.As(err, &httpErr) {
		status = httpErr.ErrorStatusCode()
	}

	code := -32603
	var details interface{}
	var cc interface{ CodeChain() string }
	if errors.As(err, &cc) {
		details = map[string]interface{}{
			"code": cc.CodeChain(),
		}
	}

	envelope := &common.JsonRpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   common.NewErrJsonRpcException(code, err.Error(), details),
	}

	out, merr := common.SonicCfg.Marshal(envelope)
	if merr != nil {
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(out)
}

func (s *HttpServer) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	snapshot := map[string]interface{}{
		"bestHeight": s.app.Registry.BestHeight(),
		"nodes":      s.app.Tracker.AllNodeMetrics(),
	}
	out, err := common.SonicCfg.Marshal(snapshot)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (s *HttpServer) Start() error {
	if s.metricsServer != nil {
		go func() {
			s.logger.Info().Str("addr", s.metricsServer.Addr).Msg("starting metrics server")
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}
	return s.server.Shutdown(ctx)
}

func NewErrReadBody(cause error) error {
	return &common.BaseError{
		Code:    "ErrReadBody",
		Message: "failed to read request body",
		Cause:   cause,
	}
}
