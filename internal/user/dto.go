package user

// RegisterRequest is the account-creation payload. The password is hashed
// before it ever reaches the repository.
// swagger:model RegisterRequest
type RegisterRequest struct {
	Name     string `json:"name"     example:"Aung Aung"`
	Email    string `json:"email"    example:"aung@example.com"`
	Phone    string `json:"phone"    example:"09123456789"`
	Password string `json:"password"`
}
