package handler

import (
	"encoding/json"
	"net/http"

	dErrors "guildgate/pkg/domain-errors"
)

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type accountResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	DiscordID string   `json:"discord_id,omitempty"`
	Avatar    string   `json:"avatar,omitempty"`
	Locale    string   `json:"locale,omitempty"`
	Roles     []string `json:"roles"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates a domain error into the JSON error envelope. CSRF and
// credential failures share one uniform body so callers learn nothing about
// flow state; provider failures surface a categorized summary, never the raw
// provider payload.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	body := errorResponse{Error: string(code)}
	switch code {
	case dErrors.CodeCSRFMismatch, dErrors.CodeUnauthorized:
		body = errorResponse{Error: string(dErrors.CodeUnauthorized), Message: "authentication failed"}
	case dErrors.CodeExternalService:
		body.Message = "authentication provider error"
	case dErrors.CodeInvalidInput, dErrors.CodeNotFound:
		if de, ok := err.(dErrors.Error); ok {
			body.Message = de.Message
		}
	default:
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}
