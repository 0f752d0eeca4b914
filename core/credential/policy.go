package credential

import "strings"

// Mode selects who supplies portal passwords.
type Mode string

const (
	// ModeGenerate asks the server to fabricate passwords and return them once.
	ModeGenerate Mode = "generate"
	// ModeCustom sends operator supplied passwords.
	ModeCustom Mode = "custom"
	// ModeNone skips account creation for both student and parent.
	ModeNone Mode = "none"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeGenerate, ModeCustom, ModeNone:
		return true
	}
	return false
}

// ParseMode is case-insensitive; empty means ModeGenerate.
func ParseMode(s string) (Mode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeGenerate, true
	}
	m := Mode(s)
	return m, m.Valid()
}

// PasswordPolicy is what the operator picked on the credentials tab.
type PasswordPolicy struct {
	Mode                   Mode   `json:"mode" yaml:"mode"`
	StudentPassword        string `json:"student_password,omitempty" yaml:"student_password,omitempty"`
	StudentPasswordConfirm string `json:"student_password_confirm,omitempty" yaml:"student_password_confirm,omitempty"`
	ParentPassword         string `json:"parent_password,omitempty" yaml:"parent_password,omitempty"`
	ParentPasswordConfirm  string `json:"parent_password_confirm,omitempty" yaml:"parent_password_confirm,omitempty"`

	// ReuseForParent lets a blank parent password fall back to the student password (ModeCustom only).
	// When off, the server generates the parent password instead.
	ReuseForParent bool `json:"reuse_for_parent" yaml:"reuse_for_parent"`
}

// Custom reports whether explicit passwords are in play.
func (p PasswordPolicy) Custom() bool { return p.Mode == ModeCustom }

// HasParentPassword reports whether a parent password was typed in.
func (p PasswordPolicy) HasParentPassword() bool { return p.ParentPassword != "" }

// Payload is the password part of the account creation request.
type Payload struct {
	CreateAccounts  bool   `json:"create_accounts"`
	Generate        bool   `json:"generate_passwords"`
	GenerateParent  bool   `json:"generate_parent_password,omitempty"`
	StudentPassword string `json:"student_password,omitempty"`
	ParentPassword  string `json:"parent_password,omitempty"`
}

// Payload maps the policy onto the account creation request.
func (p PasswordPolicy) Payload() Payload {
	switch p.Mode {
	case ModeNone:
		return Payload{CreateAccounts: false}
	case ModeCustom:
		pl := Payload{
			CreateAccounts:  true,
			StudentPassword: p.StudentPassword,
			ParentPassword:  p.EffectiveParentPassword(),
		}
		if pl.ParentPassword == "" {
			pl.GenerateParent = true
		}
		return pl
	default:
		return Payload{CreateAccounts: true, Generate: true}
	}
}

// EffectiveParentPassword is the parent password that will be sent in ModeCustom.
// Empty means the server picks one.
func (p PasswordPolicy) EffectiveParentPassword() string {
	if p.Mode != ModeCustom {
		return ""
	}
	if p.ParentPassword != "" {
		return p.ParentPassword
	}
	if p.ReuseForParent {
		return p.StudentPassword
	}
	return ""
}
