package models

// User is a registered local account, referenced by recorded attendance.
// Account management lives outside this service.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
