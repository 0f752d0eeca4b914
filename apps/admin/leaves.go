package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/registrar/core/leave"
)

func (cli *commandLine) leaves(ctx context.Context, args []string) error {
	if len(args) < 1 {
		cli.printUsage()
		return errHelp
	}

	decideCmd := flag.NewFlagSet("leaves "+args[0], flag.ContinueOnError)
	decideCmd.SetOutput(cli.out)
	key := decideCmd.String("key", "", "The leave request key, as listed.")
	note := decideCmd.String("note", "", "An optional note for the approval.")
	reason := decideCmd.String("reason", "", "The reason of the rejection.")

	switch args[0] {
	case "list":
	case "approve", "reject":
		if err := decideCmd.Parse(args[1:]); err != nil {
			return errHelp
		}
		if *key == "" {
			decideCmd.Usage()
			return errHelp
		}
	default:
		cli.printUsage()
		return errHelp
	}

	sess, err := cli.session()
	if err != nil {
		return err
	}
	q, err := leave.NewQueue(cli.api.WithToken(sess.Token), sess, cli.logger, leave.WithRecorder(cli.audit))
	if err != nil {
		return err
	}
	if _, err = q.Refresh(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "approve":
		k, err := leave.ParseKey(*key)
		if err != nil {
			return err
		}
		if err = q.Approve(ctx, k, *note); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "approved %s\n", k)
	case "reject":
		k, err := leave.ParseKey(*key)
		if err != nil {
			return err
		}
		if err = q.Reject(ctx, k, *reason); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "rejected %s\n", k)
	}

	return cli.printLeaves(q.Pending())
}

func (cli *commandLine) printLeaves(pending []leave.Request) error {
	if len(pending) == 0 {
		fmt.Fprintln(cli.out, "no pending leave requests")
		return nil
	}

	tw := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tWHO\tTYPE\tFROM\tTO\tREASON\t")
	for _, r := range pending {
		v := leave.NewView(r)
		key := v.Key
		if !v.Actionable {
			key += " (read only)"
		}
		who := v.SubjectName
		if who == "" {
			who = v.SubjectID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", key, who, v.Type, v.StartDate, v.EndDate, v.Reason)
	}
	return tw.Flush()
}
