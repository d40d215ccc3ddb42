package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/safehaven-ng/safespeak/internal/models"
	"github.com/safehaven-ng/safespeak/internal/wizard"
)

// wizardView is the client-facing snapshot of one wizard session. Documents
// carries the checklist catalog only when the current step renders the
// documents panel.
type wizardView struct {
	ID        string            `json:"id"`
	Cursor    int               `json:"cursor"`
	StepCount int               `json:"step_count"`
	Step      wizard.Step       `json:"step"`
	Documents []string          `json:"documents,omitempty"`
	Plan      models.SafetyPlan `json:"plan"`
}

func viewOf(wz *wizard.Wizard) wizardView {
	step := wz.Step()
	view := wizardView{
		ID:        wz.ID,
		Cursor:    wz.Cursor(),
		StepCount: wizard.StepCount(),
		Step:      step,
		Plan:      wz.Plan(),
	}
	if step.Panel == wizard.PanelDocuments {
		view.Documents = wizard.DocumentCatalog
	}
	return view
}

// wizardCollectionHandler serves /wizard: session creation.
func (s *Server) wizardCollectionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.wizardCollectionHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	wz := s.wizards.Create(user.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(viewOf(wz)))
}

// wizardHandler serves /wizard/{id} and its sub-resources. Paths are parsed
// manually; the id segment is always first, the optional action second.
func (s *Server) wizardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	user, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/wizard/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Wizard session not found"))
		return
	}

	wz := s.wizards.Get(segments[0])
	if wz == nil || wz.UserID != user.ID {
		// A foreign session is reported the same as a missing one.
		writeJSONResponse(w, http.StatusNotFound, models.Error("Wizard session not found"))
		return
	}

	switch {
	case len(segments) == 1:
		s.wizardViewHandler(w, r, wz)
	case segments[1] == "next" || segments[1] == "previous":
		s.wizardStepHandler(w, r, wz, segments[1])
	case segments[1] == "jump":
		s.wizardJumpHandler(w, r, wz)
	case segments[1] == "contacts":
		s.wizardContactsHandler(w, r, wz, segments[2:])
	case segments[1] == "items":
		s.wizardItemsHandler(w, r, wz)
	case segments[1] == "documents":
		s.wizardDocumentsHandler(w, r, wz)
	case segments[1] == "export":
		s.wizardExportHandler(w, r, wz)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown wizard operation"))
	}
}

func (s *Server) wizardViewHandler(w http.ResponseWriter, r *http.Request, wz *wizard.Wizard) {
	switch r.Method {
	case http.MethodGet:
		writeJSONResponse(w, http.StatusOK, models.Success(viewOf(wz)))
	case http.MethodDelete:
		s.wizards.Discard(wz.ID)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Wizard session discarded", nil))
	default:
		w.Header().Set("Allow", "GET, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) wizardStepHandler(w http.ResponseWriter, r *http.Request, wz *wizard.Wizard, action string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if action == "next" {
		wz.Next()
	} else {
		wz.Previous()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(viewOf(wz)))
}

func (s *Server) wizardJumpHandler(w http.ResponseWriter, r *http.Request, wz *wizard.Wizard) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.wizardJumpHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	wz.JumpTo(req.Index)
	writeJSONResponse(w, http.StatusOK, models.Success(viewOf(wz)))
}

func (s *Server) wizardContactsHandler(w http.ResponseWriter, r *http.Request, wz *wizard.Wizard, rest []string) {
	switch r.Method {
	case http.MethodPost:
		if len(rest) != 0 {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown wizard operation"))
			return
		}
		wz.AddContact()
		writeJSONResponse(w, http.StatusOK, models.Success(viewOf(wz)))

	case http.MethodPut:
		if len(rest) != 1 {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Contact index missing"))
			return
		}
		index, err := strconv.Atoi(rest[0])
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid contact index"))
			return
		}
		var req struct {
			Field string `json:"field"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.wizardContactsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		// Out-of-range indices are a silent no-op; the operation is total.
		wz.UpdateContact(index, req.Field, req.Value)
		writeJSONResponse(w, http.StatusOK, models.Success(viewOf(wz)))

	default:
		w.Header().Set("Allow", "POST, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) wizardItemsHandler(w http.ResponseWriter, r *http.Request, wz *wizard.Wizard) {
	var req struct {
		Field string `json:"field"`
		Index int    `json:"index"`
		Value string `json:"value"`
	}
	switch r.Method {
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.wizardItemsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		wz.AddListItem(wizard.ListField(req.Field))
		writeJSONResponse(w, http.StatusOK, models.Success(viewOf(wz)))

	case http.MethodPut:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.wizardItemsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		wz.UpdateListItem(wizard.ListField(req.Field), req.Index, req.Value)
		writeJSONResponse(w, http.StatusOK, models.Success(viewOf(wz)))

	default:
		w.Header().Set("Allow", "POST, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) wizardDocumentsHandler(w http.ResponseWriter, r *http.Request, wz *wizard.Wizard) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.wizardDocumentsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Name == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Document name cannot be empty"))
		return
	}
	wz.ToggleDocument(req.Name)
	writeJSONResponse(w, http.StatusOK, models.Success(viewOf(wz)))
}

// wizardExportHandler renders the plan document and serves it as a plain-text
// download.
func (s *Server) wizardExportHandler(w http.ResponseWriter, r *http.Request, wz *wizard.Wizard) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	doc := wz.Export()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", wizard.ExportFilename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("Server.wizardExportHandler: failed to write export", "error", err, "wizardID", wz.ID)
	}
	slog.Info("Server.wizardExportHandler: plan exported", "wizardID", wz.ID)
}
