package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/audit"
	"github.com/trezcool/registrar/core/credential"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/services/schoolapi"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	logger     core.Logger
	api        *schoolapi.Client
	audit      *audit.Service
	notifier   enrollment.Notifier
	clip       credential.Clipboard
	validate   *validator.Validate
	translator ut.Translator
	in         io.Reader
	out        io.Writer

	lines *bufio.Scanner
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  enroll -file SUBMISSION.yaml                    - enroll a new student; custom passwords missing from the file are prompted")
	fmt.Fprintln(cli.out, "  show -id STUDENT_ID                             - print a student as a submission file for update")
	fmt.Fprintln(cli.out, "  update -id STUDENT_ID -file SUBMISSION.yaml     - update an existing student")
	fmt.Fprintln(cli.out, "  lookup -email EMAIL                             - check whether an email has a portal account")
	fmt.Fprintln(cli.out, "  leaves list                                     - list pending leave requests")
	fmt.Fprintln(cli.out, "  leaves approve -key KEY [-note NOTE]            - approve a pending leave request")
	fmt.Fprintln(cli.out, "  leaves reject -key KEY -reason REASON           - reject a pending leave request")
	fmt.Fprintln(cli.out, "  audit [-action ACTION] [-limit N]               - list the latest journal entries")
	fmt.Fprintln(cli.out, "  migrate up|down|status                          - run the journal database migrations")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	enrollCmd := flag.NewFlagSet("enroll", flag.ContinueOnError)
	enrollFile := enrollCmd.String("file", "", "The submission YAML file.")

	updateCmd := flag.NewFlagSet("update", flag.ContinueOnError)
	updateID := updateCmd.String("id", "", "The student's id.")
	updateFile := updateCmd.String("file", "", "The submission YAML file.")

	showCmd := flag.NewFlagSet("show", flag.ContinueOnError)
	showID := showCmd.String("id", "", "The student's id.")

	lookupCmd := flag.NewFlagSet("lookup", flag.ContinueOnError)
	lookupEmail := lookupCmd.String("email", "", "The email to look up.")

	auditCmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	auditAction := auditCmd.String("action", "", "Only entries of this action (eg. student.enrolled).")
	auditLimit := auditCmd.Int("limit", audit.DefaultLimit, "The maximum number of entries.")

	for _, fs := range []*flag.FlagSet{enrollCmd, updateCmd, showCmd, lookupCmd, auditCmd} {
		fs.SetOutput(cli.out)
	}

	ctx := context.Background()

	switch args[1] {
	case "enroll":
		if err := enrollCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *enrollFile == "" {
			enrollCmd.Usage()
			return errHelp
		}
		return cli.enroll(ctx, *enrollFile)

	case "update":
		if err := updateCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *updateID == "" || *updateFile == "" {
			updateCmd.Usage()
			return errHelp
		}
		return cli.update(ctx, *updateID, *updateFile)

	case "show":
		if err := showCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *showID == "" {
			showCmd.Usage()
			return errHelp
		}
		return cli.show(ctx, *showID)

	case "lookup":
		if err := lookupCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *lookupEmail == "" {
			lookupCmd.Usage()
			return errHelp
		}
		return cli.lookup(ctx, *lookupEmail)

	case "leaves":
		return cli.leaves(ctx, args[2:])

	case "audit":
		if err := auditCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.listAudit(ctx, *auditAction, *auditLimit)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2])

	default:
		cli.printUsage()
		return errHelp
	}
}

// session reads the operator session out of the configured API token.
func (cli *commandLine) session() (core.Session, error) {
	sess, err := core.ParseSession(cli.conf.API.Token)
	if err != nil {
		return core.Session{}, fmt.Errorf("reading the API token (set %s_API_TOKEN): %w", cli.conf.Env, err)
	}
	return sess, nil
}

// readLine reads one line of operator input. ok is false at the end of the input.
func (cli *commandLine) readLine() (string, bool) {
	if cli.lines == nil {
		cli.lines = bufio.NewScanner(cli.in)
	}
	if !cli.lines.Scan() {
		return "", false
	}
	return strings.TrimSpace(cli.lines.Text()), true
}

func (cli *commandLine) readPassword(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) lookup(ctx context.Context, email string) error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	email = core.CleanString(email, true)
	acct, err := cli.api.WithToken(sess.Token).LookupUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		fmt.Fprintf(cli.out, "%s has no portal account\n", email)
		return nil
	}
	name := acct.Name
	if name == "" {
		name = "(no name)"
	}
	fmt.Fprintf(cli.out, "%s belongs to %s [id %s, roles %s]\n", email, name, acct.ID, strings.Join(acct.Roles, ","))
	return nil
}

func (cli *commandLine) listAudit(ctx context.Context, action string, limit int) error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	entries, err := cli.audit.Query(ctx, sess, audit.Filter{Action: action, Limit: limit})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cli.out, "no journal entries")
		return nil
	}

	tw := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tACTION\tSUBJECT\tBY\tDETAIL\t")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", e.CreatedAt.Local().Format(time.RFC822), e.Action, e.SubjectID, e.ActorID, e.Detail)
	}
	return tw.Flush()
}
