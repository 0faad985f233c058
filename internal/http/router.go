// Package httpapi 查询接口：监控会话控制 + 只读数据面，供轮询客户端消费。
package httpapi

import (
	"net/http"
	"strings"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterMonitorRoutes 注册四种监控类型的统一路由
func (r *Router) RegisterMonitorRoutes(m *MonitorHandler) {
	for _, mt := range models.AllMonitorTypes() {
		monitorType := mt
		prefix := "/api/" + string(monitorType)

		r.Handle(prefix+"/start", methodOnly(http.MethodPost, func(w http.ResponseWriter, req *http.Request) {
			m.Start(w, req, monitorType)
		}))
		r.Handle(prefix+"/stop", methodOnly(http.MethodPost, func(w http.ResponseWriter, req *http.Request) {
			m.Stop(w, req, monitorType)
		}))
		r.Handle(prefix+"/status", methodOnly(http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
			m.Status(w, req, monitorType)
		}))
		r.Handle(prefix+"/data/recent", methodOnly(http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
			m.RecentData(w, req, monitorType)
		}))
		r.Handle(prefix+"/alerts/recent", methodOnly(http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
			m.RecentAlerts(w, req, monitorType)
		}))
		r.Handle(prefix+"/check-alerts", methodOnly(http.MethodPost, func(w http.ResponseWriter, req *http.Request) {
			m.CheckAlerts(w, req, monitorType)
		}))
	}

	// 报警确认：POST /api/alerts/{id}/read
	r.Handle("/api/alerts/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/api/alerts/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "read" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m.MarkAlertRead(w, req, parts[0])
	})
}

// RegisterReportRoutes 注册报表路由
func (r *Router) RegisterReportRoutes(h *ReportHandler) {
	r.Handle("/api/reports/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		rest := strings.TrimPrefix(req.URL.Path, "/api/reports/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			h.Report(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "export":
			h.Export(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterHealthRoute 存活探针
func (r *Router) RegisterHealthRoute() {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, OkMessage("ok"))
	})
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}
