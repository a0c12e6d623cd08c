package entity

// Account represents a row of the credential table without its password.
type Account struct {
	Username string `json:"username"`
	Active   bool   `json:"active"`
	Credits  int    `json:"credits"`
}
