package discord

// TokenResponse is the provider's answer to the code exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// UserProfile is the identity snapshot from /users/@me. ID and Username are
// required; the rest depends on the granted scopes. It is never persisted
// directly, only reconciled into an account.
type UserProfile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	Email      string `json:"email"`
	Locale     string `json:"locale"`
}

// apiError is a best-effort decode of Discord's error bodies. The API is not
// consistent: OAuth endpoints use error/error_description, the REST API uses
// message/code.
type apiError struct {
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Code             int    `json:"code"`
}

// detail flattens whichever fields the provider filled into one line.
func (e apiError) detail(fallback string) string {
	msg := e.Err
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		return fallback
	}
	if e.ErrorDescription != "" {
		return msg + ": " + e.ErrorDescription
	}
	return msg
}
