package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/credential"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/student"
)

func (cli *commandLine) enroll(ctx context.Context, path string) error {
	sub, err := loadSubmission(path)
	if err != nil {
		return err
	}
	sub.Mode = enrollment.ModeCreate
	sub.StudentID = ""
	return cli.submit(ctx, sub)
}

func (cli *commandLine) update(ctx context.Context, id, path string) error {
	sub, err := loadSubmission(path)
	if err != nil {
		return err
	}
	sub.Mode = enrollment.ModeEdit
	sub.StudentID = id
	sub.Fee = nil
	return cli.submit(ctx, sub)
}

// show prints the student as a submission file ready to be edited and passed to update.
func (cli *commandLine) show(ctx context.Context, id string) error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	s, err := cli.api.WithToken(sess.Token).GetStudent(ctx, id)
	if err != nil {
		return err
	}
	return writeSubmission(cli.out, student.FromStudent(s))
}

func (cli *commandLine) orchestrator(sess core.Session) (*enrollment.Orchestrator, error) {
	conf := cli.conf.Enrollment
	opts := []enrollment.Option{
		enrollment.WithValidator(cli.validate, cli.translator),
		enrollment.WithFeeOptions(fee.Options{
			SiblingDiscountPercent: conf.SiblingDiscountPercent,
			DueDays:                conf.FeeDueDays,
		}),
		enrollment.WithStrictPasswords(conf.StrictPasswords),
		enrollment.WithParentPasswordReuse(conf.ReuseStudentPasswordForParent),
		enrollment.WithRecorder(cli.audit),
	}
	if cli.notifier != nil {
		opts = append(opts, enrollment.WithNotifier(cli.notifier))
	}
	return enrollment.NewOrchestrator(cli.api.WithToken(sess.Token), sess, cli.logger, opts...)
}

func (cli *commandLine) submit(ctx context.Context, sub enrollment.Submission) error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	if sub.Mode == enrollment.ModeCreate {
		if err = cli.promptPasswords(&sub.Passwords); err != nil {
			return err
		}
	}

	o, err := cli.orchestrator(sess)
	if err != nil {
		return errors.Wrap(err, "creating orchestrator")
	}
	out, err := o.Run(ctx, sub)
	if err != nil {
		cli.printFieldErrors(err)
		return err
	}

	cli.printOutcome(out)
	if out.ShowCredentials() {
		return cli.showCredentials(out.Credentials)
	}
	return nil
}

// promptPasswords asks for the custom passwords the submission file left out.
func (cli *commandLine) promptPasswords(p *credential.PasswordPolicy) error {
	if mode, ok := credential.ParseMode(string(p.Mode)); !ok || mode != credential.ModeCustom {
		return nil
	}

	if p.StudentPassword == "" {
		pwd, err := cli.readPassword("Student password: ")
		if err != nil {
			return errors.Wrap(err, "reading student password")
		}
		confirm, err := cli.readPassword("Confirm student password: ")
		if err != nil {
			return errors.Wrap(err, "reading student password")
		}
		p.StudentPassword, p.StudentPasswordConfirm = pwd, confirm
	}

	if p.ParentPassword == "" && p.ParentPasswordConfirm == "" {
		pwd, err := cli.readPassword("Parent password (leave blank to reuse or generate): ")
		if err != nil {
			return errors.Wrap(err, "reading parent password")
		}
		if pwd != "" {
			confirm, err := cli.readPassword("Confirm parent password: ")
			if err != nil {
				return errors.Wrap(err, "reading parent password")
			}
			p.ParentPassword, p.ParentPasswordConfirm = pwd, confirm
		}
	}
	return nil
}

func (cli *commandLine) printFieldErrors(err error) {
	var valErr *core.ValidationError
	if !errors.As(err, &valErr) || len(valErr.Fields) == 0 {
		return
	}
	fmt.Fprintln(cli.out, "The submission has errors:")
	for _, f := range valErr.Fields {
		fmt.Fprintf(cli.out, "  %s: %s\n", f.Field, f.Error)
	}
}

func (cli *commandLine) printOutcome(out enrollment.Outcome) {
	s := out.Student
	fmt.Fprintf(cli.out, "%s %s [id %s]", s.FirstName, s.LastName, s.ID)
	if s.RollNumber != "" {
		fmt.Fprintf(cli.out, " roll %s", s.RollNumber)
	}
	fmt.Fprintf(cli.out, ": %s\n", out.State)

	for _, n := range out.Notices {
		fmt.Fprintf(cli.out, "note (%s): %s\n", n.Field, n.Message)
	}
	for _, w := range out.Warnings {
		fmt.Fprintf(cli.out, "warning (%s): %s\n", w.Step, w.Message)
	}
}

// showCredentials runs the one-time credential view until the operator is done or the input ends.
func (cli *commandLine) showCredentials(creds []credential.Issued) error {
	view := credential.NewView(creds, cli.clip)
	defer view.Close()

	fmt.Fprintln(cli.out, "\nNew portal logins. Passwords are shown only now: copy them before closing.")
	for {
		if err := view.Render(cli.out); err != nil {
			return err
		}
		fmt.Fprint(cli.out, "reveal N | copy N email|password|all | done > ")

		line, ok := cli.readLine()
		if !ok {
			fmt.Fprintln(cli.out)
			break
		}
		if line == "done" || line == "q" {
			break
		}
		if err := cli.credentialCommand(view, strings.Fields(line)); err != nil {
			fmt.Fprintf(cli.out, "error: %s\n", err)
		}
	}

	fmt.Fprintln(cli.out, "Credentials closed.")
	return nil
}

func (cli *commandLine) credentialCommand(view *credential.View, args []string) error {
	if len(args) < 2 {
		return errors.New("unknown command")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.Errorf("invalid row %q", args[1])
	}
	email, ok := view.At(n - 1)
	if !ok {
		return errors.Errorf("no row %d", n)
	}

	switch args[0] {
	case "reveal", "hide":
		_, err = view.Toggle(email)
		return err
	case "copy":
		field := credential.FieldCombined
		if len(args) > 2 {
			if field, ok = credential.ParseField(args[2]); !ok {
				return errors.Errorf("unknown field %q", args[2])
			}
		}
		if err = view.Copy(email, field); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "copied %s of %s\n", field, email)
		return nil
	}
	return errors.Errorf("unknown command %q", args[0])
}
