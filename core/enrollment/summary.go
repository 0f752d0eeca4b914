package enrollment

import (
	"context"
	"net/mail"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/credential"
)

const summaryTemplate = "enrollment_summary"

type (
	summaryAccount struct {
		Role  string
		Email string
	}

	summaryData struct {
		StudentName string
		StudentID   string
		ClassID     string
		SectionID   string
		RollNumber  string
		Accounts    []summaryAccount
		Warnings    []Warning
	}
)

// SummaryNotifier mails a summary of each completed enrollment to the operator.
// Passwords are never part of it.
type SummaryNotifier struct {
	mailer core.EmailService
	cc     []mail.Address
}

var _ Notifier = (*SummaryNotifier)(nil)

// NewSummaryNotifier copies every summary to operatorEmail when it is set.
func NewSummaryNotifier(mailer core.EmailService, operatorEmail string) *SummaryNotifier {
	n := &SummaryNotifier{mailer: mailer}
	if addr, err := mail.ParseAddress(operatorEmail); err == nil {
		n.cc = []mail.Address{*addr}
	}
	return n
}

func (n *SummaryNotifier) EnrollmentCompleted(_ context.Context, sess core.Session, out Outcome) error {
	msg := n.message(sess, out)
	if !msg.HasRecipients() {
		return nil
	}
	n.mailer.SendMessages(msg)
	return nil
}

func (n *SummaryNotifier) message(sess core.Session, out Outcome) *core.EmailMessage {
	var to []mail.Address
	if sess.Email != "" {
		to = append(to, mail.Address{Name: sess.Name, Address: sess.Email})
	}
	cc := n.cc
	if len(to) == 0 {
		to, cc = cc, nil
	}

	data := summaryData{
		StudentName: out.Student.FullName(),
		StudentID:   out.Student.ID,
		ClassID:     out.Student.ClassID,
		SectionID:   out.Student.SectionID,
		RollNumber:  out.Student.RollNumber,
		Warnings:    out.Warnings,
	}
	for _, c := range credential.Redacted(out.Credentials) {
		data.Accounts = append(data.Accounts, summaryAccount{Role: c.Role, Email: c.Email})
	}

	return &core.EmailMessage{
		To:           to,
		Cc:           cc,
		Subject:      "Enrollment: " + data.StudentName,
		TemplateName: summaryTemplate,
		TemplateData: data,
	}
}
