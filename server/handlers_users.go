package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/modkeeper/permissions"
)

type userView struct {
	Username      string          `json:"username"`
	GroupID       int             `json:"group_id"`
	Group         string          `json:"group"`
	Cached        bool            `json:"cached"`
	Persisted     bool            `json:"persisted"`
	Capabilities  map[string]bool `json:"capabilities"`
	PointsOnline  int             `json:"points_online"`
	PointsOffline int             `json:"points_offline"`
}

type groupView struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	PointsOnline  int    `json:"points_online"`
	PointsOffline int    `json:"points_offline"`
	Cached        int    `json:"cached_users"`
}

func (h *Handlers) viewUser(ctx context.Context, name string) userView {
	p := h.engine.Permissions()
	name = permissions.Normalize(name)
	_, cached := p.GetUser(name)
	g, persisted := p.PersistedGroup(ctx, name)
	if cached {
		g = p.GroupID(name)
	}
	return userView{
		Username:  name,
		GroupID:   int(g),
		Group:     g.String(),
		Cached:    cached,
		Persisted: persisted,
		Capabilities: map[string]bool{
			"caster":  p.IsCaster(name),
			"admin":   p.IsAdmin(name),
			"mod":     p.IsMod(name, nil),
			"sub":     p.IsSub(name, nil),
			"donator": p.IsDonator(name),
			"regular": p.IsReg(name),
		},
		PointsOnline:  p.GroupPointMultiplier(ctx, g, true),
		PointsOffline: p.GroupPointMultiplier(ctx, g, false),
	}
}

// HandleUsers lists the cached usernames.
func (h *Handlers) HandleUsers(w http.ResponseWriter, r *http.Request) {
	users := h.engine.Permissions().Users()
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// HandleUser describes one user. Users that are not cached are reported from
// the store without being materialized.
func (h *Handlers) HandleUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, "missing username")
		return
	}
	writeJSON(w, http.StatusOK, h.viewUser(r.Context(), name))
}

// HandleGroups lists the catalog with each group's multipliers.
func (h *Handlers) HandleGroups(w http.ResponseWriter, r *http.Request) {
	p := h.engine.Permissions()
	out := make([]groupView, 0, len(permissions.Groups()))
	for _, g := range permissions.Groups() {
		out = append(out, groupView{
			ID:            int(g),
			Name:          g.String(),
			PointsOnline:  p.GroupPointMultiplier(r.Context(), g, true),
			PointsOffline: p.GroupPointMultiplier(r.Context(), g, false),
			Cached:        len(p.UsernamesInGroup(g)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

// HandleMods lists cached users in the Moderator group.
func (h *Handlers) HandleMods(w http.ResponseWriter, r *http.Request) {
	mods := h.engine.Permissions().UsernamesInGroup(permissions.Moderator)
	writeJSON(w, http.StatusOK, map[string]any{"moderators": mods, "count": len(mods)})
}

type setGroupRequest struct {
	Group *int   `json:"group"`
	Name  string `json:"name"`
}

// resolve validates the request. Unlike the chat paths, the API rejects
// unknown groups instead of clamping them to Viewer.
func (req setGroupRequest) resolve() (permissions.GroupID, error) {
	switch {
	case req.Group != nil:
		g := permissions.GroupID(*req.Group)
		if !g.Valid() {
			return 0, errors.New("group must be between 0 and 7")
		}
		return g, nil
	case req.Name != "":
		g := permissions.IDOf(req.Name)
		if !strings.EqualFold(g.String(), strings.TrimSpace(req.Name)) {
			return 0, errors.New("unknown group name")
		}
		return g, nil
	}
	return 0, errors.New(`body must carry "group" or "name"`)
}

// HandleSetGroup assigns a group to a user on the engine goroutine.
func (h *Handlers) HandleSetGroup(w http.ResponseWriter, r *http.Request) {
	name := permissions.Normalize(chi.URLParam(r, "name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing username")
		return
	}
	var req setGroupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	g, err := req.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var view userView
	err = h.engine.Do(r.Context(), func(ctx context.Context) {
		h.engine.Permissions().SetGroup(ctx, name, int(g))
		view = h.viewUser(ctx, name)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type setPointsRequest struct {
	Online  *int `json:"online"`
	Offline *int `json:"offline"`
}

// HandleSetPoints stores a group's online and/or offline multiplier. -1
// restores the default.
func (h *Handlers) HandleSetPoints(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "id"))
	g := permissions.GroupID(n)
	if err != nil || !g.Valid() {
		writeError(w, http.StatusBadRequest, "group id must be between 0 and 7")
		return
	}
	var req setPointsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Online == nil && req.Offline == nil {
		writeError(w, http.StatusBadRequest, `body must carry "online" and/or "offline"`)
		return
	}

	var view groupView
	err = h.engine.Do(r.Context(), func(ctx context.Context) {
		p := h.engine.Permissions()
		if req.Online != nil {
			p.SetPointMultiplier(ctx, g, true, *req.Online)
		}
		if req.Offline != nil {
			p.SetPointMultiplier(ctx, g, false, *req.Offline)
		}
		view = groupView{
			ID:            int(g),
			Name:          g.String(),
			PointsOnline:  p.GroupPointMultiplier(ctx, g, true),
			PointsOffline: p.GroupPointMultiplier(ctx, g, false),
			Cached:        len(p.UsernamesInGroup(g)),
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}
