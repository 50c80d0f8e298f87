package clob

// User is a registered participant. All fields are required.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// IsValid reports whether every identity field is present.
func (u *User) IsValid() bool {
	return u != nil && u.ID != "" && u.Name != "" && u.Phone != "" && u.Email != ""
}
