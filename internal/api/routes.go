package api

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"tradingagent/internal/analyzer"
	"tradingagent/internal/api/handlers"
	"tradingagent/internal/api/middleware"
	"tradingagent/internal/manager"
	"tradingagent/internal/repository"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers.
type Dependencies struct {
	GroupRepo *repository.GroupRepository
	AgentRepo *repository.AgentRepository
	TradeRepo *repository.TradeRepository
	Manager   *manager.Manager
	Analyzer  *analyzer.Analyzer
}

// SetupRoutes настраивает все HTTP маршруты приложения.
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /groups/
//	│   ├── GET / - список групп
//	│   ├── POST / - создать группу
//	│   ├── GET /{id} - получить группу
//	│   ├── PUT /{id} - обновить группу
//	│   ├── DELETE /{id} - удалить группу (отказ если не пуста)
//	│   ├── GET /{id}/members - агенты группы
//	│   └── GET /{id}/performance - сводка P&L группы
//	├── /agents/
//	│   ├── GET / - список агентов
//	│   ├── POST / - создать агента
//	│   ├── GET /{id} - получить агента (согласует статус)
//	│   ├── PUT /{id} - обновить агента
//	│   ├── DELETE /{id} - остановить и удалить агента
//	│   ├── POST /{id}/start - запустить воркер
//	│   ├── POST /{id}/stop - остановить воркер
//	│   ├── GET /{id}/performance - сводка P&L агента
//	│   └── GET /{id}/pnl - то же, под другим именем маршрута
//	└── /analysis/
//	    ├── POST /agents/{id} - запустить анализ агента
//	    └── POST /groups/{id} - запустить анализ группы
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	var groupHandler *handlers.GroupHandler
	var agentHandler *handlers.AgentHandler
	var analysisHandler *handlers.AnalysisHandler

	if deps != nil && deps.GroupRepo != nil && deps.AgentRepo != nil && deps.TradeRepo != nil {
		groupHandler = handlers.NewGroupHandler(deps.GroupRepo, deps.AgentRepo, deps.TradeRepo)
	}
	if deps != nil && deps.AgentRepo != nil && deps.TradeRepo != nil && deps.Manager != nil {
		agentHandler = handlers.NewAgentHandler(deps.AgentRepo, deps.TradeRepo, deps.Manager)
	}
	if deps != nil && deps.Analyzer != nil {
		analysisHandler = handlers.NewAnalysisHandler(deps.Analyzer)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	if groupHandler != nil {
		api.HandleFunc("/groups", groupHandler.ListGroups).Methods("GET")
		api.HandleFunc("/groups", groupHandler.CreateGroup).Methods("POST")
		api.HandleFunc("/groups/{id}", groupHandler.GetGroup).Methods("GET")
		api.HandleFunc("/groups/{id}", groupHandler.UpdateGroup).Methods("PUT")
		api.HandleFunc("/groups/{id}", groupHandler.DeleteGroup).Methods("DELETE")
		api.HandleFunc("/groups/{id}/members", groupHandler.GetGroupMembers).Methods("GET")
		api.HandleFunc("/groups/{id}/performance", groupHandler.GetGroupPerformance).Methods("GET")
	}

	if agentHandler != nil {
		api.HandleFunc("/agents", agentHandler.ListAgents).Methods("GET")
		api.HandleFunc("/agents", agentHandler.CreateAgent).Methods("POST")
		api.HandleFunc("/agents/{id}", agentHandler.GetAgent).Methods("GET")
		api.HandleFunc("/agents/{id}", agentHandler.UpdateAgent).Methods("PUT")
		api.HandleFunc("/agents/{id}", agentHandler.DeleteAgent).Methods("DELETE")
		api.HandleFunc("/agents/{id}/start", agentHandler.StartAgent).Methods("POST")
		api.HandleFunc("/agents/{id}/stop", agentHandler.StopAgent).Methods("POST")
		api.HandleFunc("/agents/{id}/performance", agentHandler.GetAgentPerformance).Methods("GET")
		api.HandleFunc("/agents/{id}/pnl", agentHandler.GetAgentPnL).Methods("GET")
	}

	if analysisHandler != nil {
		api.HandleFunc("/analysis/agents/{id}", analysisHandler.AnalyzeAgent).Methods("POST")
		api.HandleFunc("/analysis/groups/{id}", analysisHandler.AnalyzeGroup).Methods("POST")
	}

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// ============================================================
	// Prometheus metrics endpoint
	// ============================================================
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// ============================================================
	// pprof endpoints для профилирования
	// ============================================================
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)

	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)

	debug.HandleFunc("/heap", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("heap").ServeHTTP(w, r)
	})
	debug.HandleFunc("/goroutine", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("goroutine").ServeHTTP(w, r)
	})
	debug.HandleFunc("/block", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("block").ServeHTTP(w, r)
	})
	debug.HandleFunc("/threadcreate", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("threadcreate").ServeHTTP(w, r)
	})
	debug.HandleFunc("/mutex", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("mutex").ServeHTTP(w, r)
	})
	debug.HandleFunc("/allocs", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("allocs").ServeHTTP(w, r)
	})

	// Runtime stats endpoint (дополнительно)
	router.Handle("/debug/runtime", middleware.DebugAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{`))
		w.Write([]byte(`"goroutines":` + itoa(runtime.NumGoroutine()) + `,`))
		w.Write([]byte(`"heap_alloc_mb":` + ftoa(float64(m.HeapAlloc)/1024/1024) + `,`))
		w.Write([]byte(`"heap_sys_mb":` + ftoa(float64(m.HeapSys)/1024/1024) + `,`))
		w.Write([]byte(`"num_gc":` + itoa(int(m.NumGC)) + `,`))
		w.Write([]byte(`"gc_pause_total_ms":` + ftoa(float64(m.PauseTotalNs)/1e6)))
		w.Write([]byte(`}`))
	}))).Methods("GET")

	return router
}

// Вспомогательные функции для JSON без fmt
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	pos := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		b[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		b[pos] = '-'
	}
	return string(b[pos:])
}

func ftoa(f float64) string {
	i := int(f * 100)
	whole := i / 100
	frac := i % 100
	if frac < 0 {
		frac = -frac
	}
	fracStr := itoa(frac)
	if len(fracStr) == 1 {
		fracStr = "0" + fracStr
	}
	return itoa(whole) + "." + fracStr
}
