// Package api exposes a read-only HTTP view over request/group state: a
// liveness probe and a JSON projection of the state hashes the orchestrator
// writes. It never calls orchestrator.Run and never writes to the store —
// a second entry point into the state machine is explicitly undefined
// behavior, so this stays a thin projection instead.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thuduc/fan-out-fan-in/pkg/store"
)

// Server serves the read-only request-status API.
type Server struct {
	store store.Store
}

// NewServer builds a Server backed by st.
func NewServer(st store.Store) *Server {
	return &Server{store: st}
}

// Router builds the chi router exposing GET /healthz and GET /requests/{id}.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/requests/{id}", s.handleGetRequest)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// requestView is the JSON projection of a request's state plus its groups.
type requestView struct {
	RequestID string      `json:"requestId"`
	Status    string      `json:"status"`
	Groups    []groupView `json:"groups"`
}

type groupView struct {
	Index     int    `json:"index"`
	Expected  int    `json:"expected"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Status    string `json:"status"`
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx := r.Context()
	state, err := s.store.HGetAll(ctx, store.RequestStateKey(id))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(state) == 0 {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}

	groupCount, _ := strconv.Atoi(state["groupCount"])
	groups := make([]groupView, 0, groupCount)
	for i := 0; i < groupCount; i++ {
		gs, err := s.store.HGetAll(ctx, store.GroupStateKey(id, i))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		expected, _ := strconv.Atoi(gs["expected"])
		completed, _ := strconv.Atoi(gs["completed"])
		failed, _ := strconv.Atoi(gs["failed"])
		groups = append(groups, groupView{Index: i, Expected: expected, Completed: completed, Failed: failed, Status: gs["status"]})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(requestView{RequestID: id, Status: state["status"], Groups: groups})
}
