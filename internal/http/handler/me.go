package handler

import (
	"net/http"

	"outreach/internal/auth"
)

type MeHandler struct{}

type meView struct {
	UserID uint64 `json:"user_id"`
	Admin  bool   `json:"admin"`
}

// Me echoes the identity carried by the caller's token.
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	uid, err := c.UserID()
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, meView{UserID: uid, Admin: c.Admin})
}
