package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wayfarer/pkg/fault"
	"wayfarer/pkg/model"
	"wayfarer/pkg/planner"
	"wayfarer/pkg/reopt"
	"wayfarer/pkg/tourstore"
)

// TourHandler serves tour planning, retrieval, and editing.
type TourHandler struct {
	planner *planner.Planner
	reopt   *reopt.Service
	tours   *tourstore.Store
}

// NewTourHandler creates the handler.
func NewTourHandler(p *planner.Planner, r *reopt.Service, tours *tourstore.Store) *TourHandler {
	return &TourHandler{planner: p, reopt: r, tours: tours}
}

// HandlePlan handles POST /api/tours.
func (h *TourHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var params model.PlanParams
	if err := decodeBody(r, &params); err != nil {
		writeError(w, err)
		return
	}
	tour, err := h.planner.Plan(r.Context(), params, userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tour)
}

// HandleList handles GET /api/tours with an optional ?city= filter.
func (h *TourHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.tours.List(r.URL.Query().Get("city"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tours": summaries})
}

// HandleGet handles GET /api/tours/{id}?language=&version=.
func (h *TourHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	language := r.URL.Query().Get("language")
	if language == "" {
		language = "en"
	}

	var tour *model.Tour
	var err error
	if raw := r.URL.Query().Get("version"); raw != "" {
		version, convErr := strconv.Atoi(raw)
		if convErr != nil {
			writeError(w, fault.New(fault.Invalid, fault.CodeInvalidArgument, "invalid version %q", raw))
			return
		}
		tour, err = h.tours.LoadVersion(id, language, version)
	} else {
		tour, err = h.tours.Load(id, language)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tour)
}

// HandleVersions handles GET /api/tours/{id}/versions.
func (h *TourHandler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	meta, err := h.tours.Metadata(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// HandleAddLanguage handles POST /api/tours/{id}/languages.
func (h *TourHandler) HandleAddLanguage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Language string `json:"language"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	tour, err := h.planner.AddLanguage(r.Context(), chi.URLParam(r, "id"), body.Language, userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tour)
}

type replaceResponse struct {
	Tour    *model.Tour `json:"tour"`
	Version int         `json:"version"`
	Tier    string      `json:"tier"`
}

// HandleReplace handles POST /api/tours/{id}/replace-poi.
func (h *TourHandler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode        string `json:"mode,omitempty"`
		Original    string `json:"original_poi"`
		Replacement string `json:"replacement_poi"`
		Day         int    `json:"day,omitempty"`
		Language    string `json:"language"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	h.replace(w, r, body.Language, reopt.Mode(body.Mode), []reopt.Replacement{
		{Original: body.Original, Replacement: body.Replacement, Day: body.Day},
	})
}

// HandleReplaceBatch handles POST /api/tours/{id}/replace-pois-batch.
func (h *TourHandler) HandleReplaceBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode         string              `json:"mode,omitempty"`
		Replacements []reopt.Replacement `json:"replacements"`
		Language     string              `json:"language"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	h.replace(w, r, body.Language, reopt.Mode(body.Mode), body.Replacements)
}

func (h *TourHandler) replace(w http.ResponseWriter, r *http.Request, language string, mode reopt.Mode, repls []reopt.Replacement) {
	if language == "" {
		language = "en"
	}
	res, err := h.reopt.Replace(r.Context(), chi.URLParam(r, "id"), language, mode, repls, userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replaceResponse{
		Tour:    res.Tour,
		Version: res.Version,
		Tier:    string(res.Tier),
	})
}

// HandleValidateCity handles GET /api/cities/{city}/validate.
func (h *TourHandler) HandleValidateCity(w http.ResponseWriter, r *http.Request) {
	issues, err := h.planner.ValidateCity(chi.URLParam(r, "city"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
}

func userOf(r *http.Request) string {
	return r.Header.Get("X-User")
}
