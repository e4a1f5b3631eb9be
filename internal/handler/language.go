package handler

import (
	"net/http"

	"github.com/sakif/gradebox/internal/language"
)

// LanguageInfo describes a supported language to API clients.
type LanguageInfo struct {
	ID        string `json:"id"`
	Image     string `json:"image"`
	Extension string `json:"extension"`
	Compiled  bool   `json:"compiled"`
}

// LanguageHandler lists the registry.
type LanguageHandler struct {
	registry *language.Registry
}

func NewLanguageHandler(registry *language.Registry) *LanguageHandler {
	return &LanguageHandler{registry: registry}
}

// HandleList serves GET /languages.
func (h *LanguageHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	profiles := h.registry.List()
	out := make([]LanguageInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, LanguageInfo{
			ID:        string(p.ID),
			Image:     p.Image,
			Extension: p.Extension,
			Compiled:  p.Compiled(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
