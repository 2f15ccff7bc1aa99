package identity

import (
	"encoding/json"
)

// LoginRequest represents the data needed to issue a player identity
type LoginRequest struct {
	Handle string `json:"handle"`
	// ID is kept when the client already holds one, e.g. after a reconnect.
	ID string `json:"id,omitempty"`
}

// UnmarshalJSON accepts "email" as an alias of "handle"; the web client
// logs in with the address typed on its login screen.
func (r *LoginRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Handle string `json:"handle"`
		Email  string `json:"email"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Handle = raw.Handle
	if r.Handle == "" {
		r.Handle = raw.Email
	}
	r.ID = raw.ID
	return nil
}
