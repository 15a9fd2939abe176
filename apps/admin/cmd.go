package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrations need a postgres database engine")
)

type commandLine struct {
	db     *sql.DB // nil on the in-memory engine
	usrSvc *user.Service
	roller *rollover.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  listusers [-search TEXT] [-role ROLE]                   - list users")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -fullname NAME [-email EMAIL] [-role ROLE]")
	fmt.Fprintln(cli.out, "                                                          - create a user; the password is prompted")
	fmt.Fprintln(cli.out, "  deleteuser -username USERNAME|EMAIL                     - delete a user and its account")
	fmt.Fprintln(cli.out, "  recreateuser -username USERNAME|EMAIL                   - delete then create a user again; the password is prompted")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL                  - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                  - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  rollover [-at YYYY-MM-DD] [-reset-attendance]           - register active bookings for the next month")
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	listUsersCmd := flag.NewFlagSet("listusers", flag.ExitOnError)
	listUsersSearch := listUsersCmd.String("search", "", "Filter on username, email or full name.")
	listUsersRole := listUsersCmd.String("role", "", "Only list users with this role.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserFullName := addUserCmd.String("fullname", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. Defaults to USERNAME@local.app")
	addUserRole := addUserCmd.String("role", user.RoleOwner, "The user's role.")

	deleteUserCmd := flag.NewFlagSet("deleteuser", flag.ExitOnError)
	deleteUserUname := deleteUserCmd.String("username", "", "The user's username or email.")

	recreateUserCmd := flag.NewFlagSet("recreateuser", flag.ExitOnError)
	recreateUserUname := recreateUserCmd.String("username", "", "The user's username or email. The new password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	rolloverCmd := flag.NewFlagSet("rollover", flag.ExitOnError)
	rolloverAt := rolloverCmd.String("at", "", "Reference date (YYYY-MM-DD); the rollover targets the following month. Defaults to today.")
	rolloverReset := rolloverCmd.Bool("reset-attendance", false, "Clear the target month attendance.")

	switch args[1] {
	case "listusers":
		if err := listUsersCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listUsers(*listUsersSearch, *listUsersRole)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserFullName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserFullName, *addUserEmail, *addUserRole, pwd)

	case "deleteuser":
		if err := deleteUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *deleteUserUname == "" {
			deleteUserCmd.Usage()
			return errHelp
		}
		return cli.deleteUser(*deleteUserUname)

	case "recreateuser":
		if err := recreateUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recreateUserUname == "" {
			recreateUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			recreateUserCmd.Usage()
			return errHelp
		}
		return cli.recreateUser(*recreateUserUname, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "rollover":
		if err := rolloverCmd.Parse(args[2:]); err != nil {
			return err
		}
		at := core.NowFunc()
		if *rolloverAt != "" {
			d, err := core.ParseDate(*rolloverAt)
			if err != nil {
				return err
			}
			at = d
		}
		return cli.rollover(at, *rolloverReset)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) rollover(at time.Time, resetAttendance bool) error {
	res, err := cli.roller.ResetAllToNextMonth(context.Background(), user.SystemSession(), at, resetAttendance)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "rollover to %d-%02d: %d bookings processed, %d registrations created, %d skipped\n",
		res.Year, res.Month, res.Processed, res.Created, res.Skipped)
	for _, e := range res.Errors {
		fmt.Fprintln(cli.out, "  error:", e)
	}
	return nil
}
