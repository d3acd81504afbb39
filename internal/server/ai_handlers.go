package server

import (
	"net/http"
	"strings"

	"github.com/crewdesk/crewdesk/internal/ai"
	"github.com/crewdesk/crewdesk/internal/authz"
	jsonwriter "github.com/crewdesk/crewdesk/internal/json"
)

// AIHandlers implements the ask-a-question endpoint.
type AIHandlers struct {
	policy authz.Policy
	client *ai.Client
	store  *ai.VectorStore
}

// NewAIHandlers creates the question-answering handlers. The feature is
// disabled (503) when no API key is configured.
func NewAIHandlers(policy authz.Policy, client *ai.Client, store *ai.VectorStore) *AIHandlers {
	return &AIHandlers{policy: policy, client: client, store: store}
}

// AskHandler answers a free-text question over the indexed file names.
func (h *AIHandlers) AskHandler(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if err := h.policy.RequireAuthenticated(s); err != nil {
		jsonwriter.WriteUnauthorized(w, "please log in")
		return
	}
	if !h.client.Enabled() {
		jsonwriter.WriteServiceUnavailable(w, "question answering is not configured")
		return
	}

	var body struct {
		Question string `json:"question"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		jsonwriter.WriteBadRequest(w, "missing question")
		return
	}

	answer, err := h.store.Ask(r.Context(), body.Question)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "failed to answer question")
		return
	}
	jsonwriter.Write(w, map[string]any{"answer": answer})
}

// IndexHandler re-indexes the provided texts for question answering.
func (h *AIHandlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if err := h.policy.RequireManager(s); err != nil {
		jsonwriter.WriteUnauthorized(w, "please log in")
		return
	}
	if !h.client.Enabled() {
		jsonwriter.WriteServiceUnavailable(w, "question answering is not configured")
		return
	}

	var body struct {
		Texts []string `json:"texts"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := h.store.Index(r.Context(), body.Texts); err != nil {
		jsonwriter.WriteInternalServerError(w, "failed to index texts")
		return
	}
	jsonwriter.Write(w, map[string]any{"success": true, "indexed": len(body.Texts)})
}
