package auth

// HasUserUUID reports whether the session carries a parseable user UUID.
// Handlers that key storage on the account id check this before touching
// user-scoped records.
func HasUserUUID(session Session) bool {
	if session == nil {
		return false
	}
	_, err := session.GetUserUUID()
	return err == nil
}
