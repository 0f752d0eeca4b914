// Package fee holds the admission fee form offered with new enrollments.
package fee

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/registrar/core"
)

const (
	DefaultSiblingDiscountPercent = 10
	DefaultDueDays                = 7

	dateLayout = "2006-01-02"
)

var (
	ErrInvalidAmount    = errors.New("amount must be a non-negative number")
	ErrDiscountTooLarge = errors.New("discount cannot exceed the total of the fee items")
)

// Draft is the optional fee form of a new enrollment. Amounts are kept as typed.
type Draft struct {
	AdmissionFee    string    `json:"admission_fee" yaml:"admission_fee"`
	RegistrationFee string    `json:"registration_fee" yaml:"registration_fee"`
	IDCardFee       string    `json:"id_card_fee" yaml:"id_card_fee"`
	Discount        string    `json:"discount" yaml:"discount"`
	SiblingDiscount bool      `json:"apply_sibling_discount" yaml:"apply_sibling_discount"`
	DueDate         time.Time `json:"due_date" yaml:"due_date"`
	Notes           string    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// ApplySiblingDiscount sets Discount to percent% of the admission fee when the sibling flag is set.
// A manually entered discount is kept when the flag is off.
func (d *Draft) ApplySiblingDiscount(percent int) error {
	if !d.SiblingDiscount {
		return nil
	}
	admission, err := parseAmount(d.AdmissionFee)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "fee.admission_fee", Error: err.Error()})
	}
	d.Discount = admission.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(2).String()
	return nil
}

// DefaultDueDate is today + days, at midnight UTC.
func DefaultDueDate(now time.Time, days int) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}

type Item struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// Payload is the admission fee creation request.
type Payload struct {
	StudentID string `json:"student_id"`
	SchoolID  string `json:"school_id,omitempty"`
	Items     []Item `json:"items"`
	Gross     string `json:"gross"`
	Discount  string `json:"discount"`
	Total     string `json:"total"`
	DueDate   string `json:"due_date"`
	Notes     string `json:"notes,omitempty"`
}

// Options are the school's fee settings.
type Options struct {
	SiblingDiscountPercent int
	DueDays                int
}

func (o Options) withDefaults() Options {
	if o.SiblingDiscountPercent <= 0 {
		o.SiblingDiscountPercent = DefaultSiblingDiscountPercent
	}
	if o.DueDays <= 0 {
		o.DueDays = DefaultDueDays
	}
	return o
}

// Quote computes the fee lines without creating anything. It applies the sibling discount and due date defaults.
func (d Draft) Quote(now time.Time, opts Options) (Payload, error) {
	opts = opts.withDefaults()
	if err := d.ApplySiblingDiscount(opts.SiblingDiscountPercent); err != nil {
		return Payload{}, err
	}

	lines := []struct {
		field, name, value string
	}{
		{"fee.admission_fee", "Admission Fee", d.AdmissionFee},
		{"fee.registration_fee", "Registration Fee", d.RegistrationFee},
		{"fee.id_card_fee", "ID Card Fee", d.IDCardFee},
	}

	gross := decimal.Zero
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		amount, err := parseAmount(l.value)
		if err != nil {
			return Payload{}, core.NewValidationError(err, core.FieldError{Field: l.field, Error: err.Error()})
		}
		if amount.IsZero() {
			continue
		}
		gross = gross.Add(amount)
		items = append(items, Item{Name: l.name, Amount: amount.String()})
	}

	discount, err := parseAmount(d.Discount)
	if err != nil {
		return Payload{}, core.NewValidationError(err, core.FieldError{Field: "fee.discount", Error: err.Error()})
	}
	if discount.GreaterThan(gross) {
		return Payload{}, core.NewValidationError(ErrDiscountTooLarge, core.FieldError{Field: "fee.discount", Error: ErrDiscountTooLarge.Error()})
	}

	due := d.DueDate
	if due.IsZero() {
		due = DefaultDueDate(now, opts.DueDays)
	}

	return Payload{
		Items:    items,
		Gross:    gross.String(),
		Discount: discount.String(),
		Total:    gross.Sub(discount).String(),
		DueDate:  due.Format(dateLayout),
		Notes:    core.CleanString(d.Notes),
	}, nil
}

// Payload builds the creation request for a created student.
func (d Draft) Payload(studentID, schoolID string, now time.Time, opts Options) (Payload, error) {
	p, err := d.Quote(now, opts)
	if err != nil {
		return Payload{}, err
	}
	p.StudentID = studentID
	p.SchoolID = schoolID
	return p, nil
}

// parseAmount treats blank as zero.
func parseAmount(s string) (decimal.Decimal, error) {
	s = core.CleanString(s)
	if s == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}
