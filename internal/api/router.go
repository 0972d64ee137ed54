package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Router 装配 /data、/latest_liquidations、/history、/symbol_stats、/health、
// /stream 路由，并套上 CORS 与访问日志中间件
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.HandleFunc("/data", s.handleData).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/latest_liquidations", s.handleLatestLiquidations).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/symbol_stats", s.handleSymbolStats).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/stream", s.streamer.ServeHTTP).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	return r
}

// WSHandler 返回对外 WebSocket 推送端点的处理器，挂载在独立端口/路径上
func (s *Server) WSHandler() http.HandlerFunc {
	return s.ws.ServeHTTP
}

// corsMiddleware 允许任意来源读取，这是一个公开的只读行情接口
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		s.logger.Debug("HTTP 请求",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapper.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(s.logger, w, http.StatusNotFound, "未找到该路径")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush 透传底层的 http.Flusher，/stream 的 SSE 推送依赖逐帧刷出
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
