package proxy

import (
	"net/http"

	"github.com/mandalnilabja/latchway/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/latchway/internal/types"
)

// ListModels returns every configured category as a model.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	list := types.ModelList{Data: []types.ModelEntry{}}
	for _, c := range h.Engine.Config().Categories() {
		list.Data = append(list.Data, types.ModelEntry{ID: c})
	}
	shared.WriteJSON(w, list, http.StatusOK)
}
