package student

import (
	"strings"

	"github.com/trezcool/registrar/core"
)

// ParentRole is the parent/guardian that becomes the portal account holder.
type ParentRole string

const (
	ParentNone     ParentRole = ""
	ParentFather   ParentRole = "father"
	ParentMother   ParentRole = "mother"
	ParentGuardian ParentRole = "guardian"
)

func (r ParentRole) Valid() bool {
	switch r {
	case ParentNone, ParentFather, ParentMother, ParentGuardian:
		return true
	}
	return false
}

// DocumentKind is one of the identity documents attached to an enrollment.
type DocumentKind string

const (
	DocAadhaar          DocumentKind = "aadhaar"
	DocApaar            DocumentKind = "apaar"
	DocBirthCertificate DocumentKind = "birth-certificate"
)

var DocumentKinds = []DocumentKind{DocAadhaar, DocApaar, DocBirthCertificate}

func (k DocumentKind) Valid() bool {
	for _, kind := range DocumentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

type Parent struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Phone      string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email      string `json:"email,omitempty" yaml:"email,omitempty" validate:"omitempty,email"`
	Occupation string `json:"occupation,omitempty" yaml:"occupation,omitempty"`
}

type Guardian struct {
	Parent   `yaml:",inline"`
	Relation string `json:"relation,omitempty" yaml:"relation,omitempty"`
}

type Address struct {
	Line1      string `json:"line1,omitempty" yaml:"line1,omitempty"`
	Line2      string `json:"line2,omitempty" yaml:"line2,omitempty"`
	City       string `json:"city,omitempty" yaml:"city,omitempty"`
	State      string `json:"state,omitempty" yaml:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty" yaml:"postal_code,omitempty"`
	Country    string `json:"country,omitempty" yaml:"country,omitempty"`
}

type AcademicHistory struct {
	PreviousSchool        string `json:"previous_school,omitempty" yaml:"previous_school,omitempty"`
	PreviousClass         string `json:"previous_class,omitempty" yaml:"previous_class,omitempty"`
	TransferCertificateNo string `json:"transfer_certificate_no,omitempty" yaml:"transfer_certificate_no,omitempty"`
	YearOfPassing         int    `json:"year_of_passing,omitempty" yaml:"year_of_passing,omitempty" validate:"omitempty,min=1900,max=2100"`
}

// Draft is the student form as the operator fills it in.
type Draft struct {
	FirstName          string          `json:"first_name" yaml:"first_name" validate:"required"`
	LastName           string          `json:"last_name" yaml:"last_name"`
	Email              string          `json:"email,omitempty" yaml:"email,omitempty" validate:"omitempty,email"`
	Phone              string          `json:"phone,omitempty" yaml:"phone,omitempty"`
	Gender             string          `json:"gender,omitempty" yaml:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	DateOfBirth        string          `json:"date_of_birth,omitempty" yaml:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ClassID            string          `json:"class_id,omitempty" yaml:"class_id,omitempty"`
	SectionID          string          `json:"section_id,omitempty" yaml:"section_id,omitempty"`
	RollNumber         string          `json:"roll_number,omitempty" yaml:"roll_number,omitempty"`
	AdmissionNumber    string          `json:"admission_number,omitempty" yaml:"admission_number,omitempty"`
	AadhaarNumber      string          `json:"aadhaar_number,omitempty" yaml:"aadhaar_number,omitempty"`
	ApaarID            string          `json:"apaar_id,omitempty" yaml:"apaar_id,omitempty" validate:"omitempty,apaar"`
	BirthCertificateNo string          `json:"birth_certificate_no,omitempty" yaml:"birth_certificate_no,omitempty"`
	Address            Address         `json:"address" yaml:"address"`
	Father             Parent          `json:"father" yaml:"father"`
	Mother             Parent          `json:"mother" yaml:"mother"`
	Guardian           Guardian        `json:"guardian" yaml:"guardian"`
	Academic           AcademicHistory `json:"academic" yaml:"academic"`
	// IsActive is only sent when set, so a partial edit never flips the status.
	IsActive *bool `json:"is_active,omitempty" yaml:"is_active,omitempty"`
}

// Clean trims text fields and lowers e-mail addresses.
func (d *Draft) Clean() {
	d.FirstName = core.CleanString(d.FirstName)
	d.LastName = core.CleanString(d.LastName)
	d.Email = core.CleanString(d.Email, true /* lower */)
	d.Phone = core.CleanString(d.Phone)
	d.Gender = core.CleanString(d.Gender, true /* lower */)
	d.DateOfBirth = core.CleanString(d.DateOfBirth)
	d.ClassID = core.CleanString(d.ClassID)
	d.SectionID = core.CleanString(d.SectionID)
	d.RollNumber = core.CleanString(d.RollNumber)
	d.AdmissionNumber = core.CleanString(d.AdmissionNumber)
	d.AadhaarNumber = strings.ReplaceAll(core.CleanString(d.AadhaarNumber), " ", "")
	d.ApaarID = core.CleanString(d.ApaarID)
	d.BirthCertificateNo = core.CleanString(d.BirthCertificateNo)
	for _, p := range []*Parent{&d.Father, &d.Mother, &d.Guardian.Parent} {
		p.Name = core.CleanString(p.Name)
		p.Phone = core.CleanString(p.Phone)
		p.Email = core.CleanString(p.Email, true /* lower */)
		p.Occupation = core.CleanString(p.Occupation)
	}
	d.Guardian.Relation = core.CleanString(d.Guardian.Relation)
}

// FullName is "first last".
func (d Draft) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// ParentFor returns the parent sub-record of the given role.
func (d Draft) ParentFor(role ParentRole) (Parent, bool) {
	switch role {
	case ParentFather:
		return d.Father, true
	case ParentMother:
		return d.Mother, true
	case ParentGuardian:
		return d.Guardian.Parent, true
	}
	return Parent{}, false
}

// ParentEmail returns the e-mail of the selected parent role.
func (d Draft) ParentEmail(role ParentRole) string {
	p, _ := d.ParentFor(role)
	return core.CleanString(p.Email)
}

// Patch builds the partial update body from the draft. The status flag is updated separately.
func (d Draft) Patch() Patch {
	return Patch{
		FirstName:          d.FirstName,
		LastName:           d.LastName,
		Email:              d.Email,
		Phone:              d.Phone,
		Gender:             d.Gender,
		DateOfBirth:        d.DateOfBirth,
		ClassID:            d.ClassID,
		SectionID:          d.SectionID,
		RollNumber:         d.RollNumber,
		AadhaarNumber:      d.AadhaarNumber,
		ApaarID:            d.ApaarID,
		BirthCertificateNo: d.BirthCertificateNo,
		Address:            d.Address,
		Father:             d.Father,
		Mother:             d.Mother,
		Guardian:           d.Guardian,
		Academic:           d.Academic,
	}
}

// Patch is the body of a partial update; empty fields are left alone by the server.
type Patch struct {
	FirstName          string          `json:"first_name,omitempty"`
	LastName           string          `json:"last_name,omitempty"`
	Email              string          `json:"email,omitempty"`
	Phone              string          `json:"phone,omitempty"`
	Gender             string          `json:"gender,omitempty"`
	DateOfBirth        string          `json:"date_of_birth,omitempty"`
	ClassID            string          `json:"class_id,omitempty"`
	SectionID          string          `json:"section_id,omitempty"`
	RollNumber         string          `json:"roll_number,omitempty"`
	AadhaarNumber      string          `json:"aadhaar_number,omitempty"`
	ApaarID            string          `json:"apaar_id,omitempty"`
	BirthCertificateNo string          `json:"birth_certificate_no,omitempty"`
	Address            Address         `json:"address"`
	Father             Parent          `json:"father"`
	Mother             Parent          `json:"mother"`
	Guardian           Guardian        `json:"guardian"`
	Academic           AcademicHistory `json:"academic"`
}

// Student is a student record as returned by the school API.
type Student struct {
	ID              string `json:"id"`
	AdmissionNumber string `json:"admission_number,omitempty"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email,omitempty"`
	ClassID         string `json:"class_id,omitempty"`
	SectionID       string `json:"section_id,omitempty"`
	RollNumber      string `json:"roll_number,omitempty"`
	IsActive        bool   `json:"is_active"`

	// optional, returned on detail endpoints
	Draft *Draft `json:"details,omitempty"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// FromStudent hydrates a draft from an existing record (edit mode).
func FromStudent(s Student) Draft {
	var d Draft
	if s.Draft != nil {
		d = *s.Draft
	}
	d.FirstName = s.FirstName
	d.LastName = s.LastName
	d.Email = s.Email
	d.ClassID = s.ClassID
	d.SectionID = s.SectionID
	d.RollNumber = s.RollNumber
	d.AdmissionNumber = s.AdmissionNumber
	active := s.IsActive
	d.IsActive = &active
	return d
}
