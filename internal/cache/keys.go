package cache

// Board keys
func KeyBoard(boardID string) string {
	return Key("boards", boardID)
}

// User keys
func KeyUser(userID string) string {
	return Key("users", userID)
}
