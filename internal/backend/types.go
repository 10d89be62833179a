package backend

// Wire shapes of the chat backend. Field names follow the backend's JSON.

type fileInfo struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	CreatedAt   string `json:"created_at"`
}

type filesResponse struct {
	Files []fileInfo `json:"files"`
}

type modelsResponse struct {
	Models []string `json:"models"`
}

type profileResponse struct {
	UID        string  `json:"uid"`
	Email      string  `json:"email"`
	Username   string  `json:"username"`
	HasAPIKey  bool    `json:"has_api_key"`
	APIKeyHint *string `json:"api_key_hint"`
}

type apiKeyBody struct {
	APIKey string `json:"api_key"`
}

type usernameBody struct {
	Username string `json:"username"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type historyResponse struct {
	Messages []chatMessage `json:"messages"`
}

type chatRequest struct {
	FileName string `json:"file_name"`
	Question string `json:"question"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type sourceChunk struct {
	Text   string  `json:"text"`
	Page   *int    `json:"page"`
	Source *string `json:"source"`
}

type chatResponse struct {
	Answer  string        `json:"answer"`
	Sources []sourceChunk `json:"sources"`
}

type youtubeRequest struct {
	URL string `json:"url"`
}

type uploadResponse struct {
	FileName string `json:"file_name"`
	Message  string `json:"message"`
}

// RegisterRequest creates a backend account. Sign-in itself happens outside the
// bot; the resulting identity token is linked with /login.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Username string `json:"username" validate:"max=64"`
}

type RegisterResponse struct {
	UID     string `json:"uid"`
	Message string `json:"message"`
}
