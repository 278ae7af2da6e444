package chat

// Identity is supplied by the login collaborator at session start and passed
// through untouched to the gateway and the history store.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
