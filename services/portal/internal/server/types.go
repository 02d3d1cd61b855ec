package server

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleRequest struct {
	Credential string `json:"credential"`
	Role       string `json:"role"`
}

type needsRoleResponse struct {
	NeedsRole bool   `json:"needsRole"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// jobRequest serves create and update; nil fields are absent from the body.
type jobRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Skills      *string `json:"skillsRequired"`
	Location    *string `json:"location"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type profileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type resumeURLRequest struct {
	ResumeURL string `json:"resumeUrl"`
}

type messageResponse struct {
	Message string `json:"message"`
}
