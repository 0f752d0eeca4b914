package credential

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
)

// CopiedFeedback is how long a field shows as "copied" after a copy.
const CopiedFeedback = 2000 * time.Millisecond

const mask = "********"

var ErrUnknownCredential = errors.New("unknown credential")

// Field is a copyable part of a credential.
type Field int

const (
	FieldEmail Field = iota
	FieldPassword
	FieldCombined
)

func (f Field) String() string {
	switch f {
	case FieldEmail:
		return "email"
	case FieldPassword:
		return "password"
	case FieldCombined:
		return "all"
	}
	return "unknown"
}

// ParseField accepts the names returned by Field.String.
func ParseField(s string) (Field, bool) {
	switch s {
	case "email":
		return FieldEmail, true
	case "password", "pwd":
		return FieldPassword, true
	case "all", "combined":
		return FieldCombined, true
	}
	return 0, false
}

// Clipboard receives copied text.
type Clipboard interface {
	WriteAll(text string) error
}

type copyKey struct {
	email string
	field Field
}

// View is the one-time credential reveal. All of its state is volatile:
// once closed, passwords that were not copied are gone for good.
type View struct {
	mu       sync.Mutex
	creds    []Issued
	revealed map[string]bool
	copied   map[copyKey]time.Time
	clip     Clipboard
	now      func() time.Time
	closed   bool
}

type ViewOption func(*View)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) ViewOption {
	return func(v *View) { v.now = now }
}

func NewView(creds []Issued, clip Clipboard, opts ...ViewOption) *View {
	v := &View{
		creds:    append([]Issued(nil), creds...),
		revealed: make(map[string]bool, len(creds)),
		copied:   make(map[copyKey]time.Time),
		clip:     clip,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Credentials returns the credentials in display order, with passwords masked unless revealed.
func (v *View) Credentials() []Issued {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Issued, 0, len(v.creds))
	for _, c := range v.creds {
		c.Password = v.displayPassword(c)
		out = append(out, c)
	}
	return out
}

// Len is the number of credentials still held.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.creds)
}

// At returns the email of the i-th credential (0 based).
func (v *View) At(i int) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.creds) {
		return "", false
	}
	return v.creds[i].Email, true
}

// Toggle flips the visibility of the password of the credential keyed by email and returns the new state.
func (v *View) Toggle(email string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.find(email); !ok {
		return false, ErrUnknownCredential
	}
	v.revealed[email] = !v.revealed[email]
	return v.revealed[email], nil
}

// Password returns the password as currently displayed: masked or literal.
func (v *View) Password(email string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, ok := v.find(email)
	if !ok {
		return "", ErrUnknownCredential
	}
	return v.displayPassword(c), nil
}

// Copy puts the field text on the clipboard. Masking does not affect what is copied.
func (v *View) Copy(email string, field Field) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, ok := v.find(email)
	if !ok {
		return ErrUnknownCredential
	}

	var text string
	switch field {
	case FieldEmail:
		text = c.Email
	case FieldPassword:
		if !c.HasSecret() {
			return errors.Errorf("no password to copy for %s", c.Email)
		}
		text = c.Password
	case FieldCombined:
		text = combined(c)
	default:
		return errors.Errorf("unknown field %d", field)
	}

	if err := v.clip.WriteAll(text); err != nil {
		return errors.Wrap(err, "writing to clipboard")
	}
	v.copied[copyKey{email, field}] = v.now()
	return nil
}

// Copied reports whether the field was copied less than CopiedFeedback ago.
func (v *View) Copied(email string, field Field) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	at, ok := v.copied[copyKey{email, field}]
	if !ok {
		return false
	}
	if v.now().Sub(at) >= CopiedFeedback {
		delete(v.copied, copyKey{email, field})
		return false
	}
	return true
}

// Close discards every credential and all view state.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.creds {
		v.creds[i].Password = ""
	}
	v.creds = nil
	v.revealed = make(map[string]bool)
	v.copied = make(map[copyKey]time.Time)
	v.closed = true
}

func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Render writes the credential table.
func (v *View) Render(w io.Writer) error {
	creds := v.Credentials()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tROLE\tNAME\tEMAIL\tPASSWORD\t")
	for i, c := range creds {
		pwd := c.Password
		if pwd == "" {
			pwd = "(sent by email)"
		}
		var marks string
		if v.Copied(c.Email, FieldPassword) || v.Copied(c.Email, FieldCombined) {
			marks = "copied"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, c.Role, c.DisplayName, c.Email, pwd, marks)
	}
	return tw.Flush()
}

func (v *View) find(email string) (Issued, bool) {
	for _, c := range v.creds {
		if c.Email == email {
			return c, true
		}
	}
	return Issued{}, false
}

func (v *View) displayPassword(c Issued) string {
	if !c.HasSecret() {
		return ""
	}
	if v.revealed[c.Email] {
		return c.Password
	}
	return mask
}

func combined(c Issued) string {
	if !c.HasSecret() {
		return "Email: " + c.Email
	}
	return "Email: " + c.Email + "\nPassword: " + c.Password
}
