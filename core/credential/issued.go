package credential

// Roles returned by the school API for issued accounts.
const (
	RoleStudent  = "student"
	RoleFather   = "father"
	RoleMother   = "mother"
	RoleGuardian = "guardian"
	RoleParent   = "parent"
)

// Issued is a freshly created portal login. The password, when present, is only ever shown once:
// it is never stored, logged or mailed.
type Issued struct {
	Email       string `json:"email"`
	Password    string `json:"password,omitempty"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

func (c Issued) HasSecret() bool { return c.Password != "" }

// AnySecret reports whether at least one credential carries a password.
func AnySecret(creds []Issued) bool {
	for _, c := range creds {
		if c.HasSecret() {
			return true
		}
	}
	return false
}

// Redacted returns copies of creds without their passwords.
func Redacted(creds []Issued) []Issued {
	out := make([]Issued, 0, len(creds))
	for _, c := range creds {
		c.Password = ""
		out = append(out, c)
	}
	return out
}
