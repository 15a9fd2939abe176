package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/user"
)

func (cli *commandLine) listUsers(search, role string) error {
	filter := &user.QueryFilter{Search: search}
	if role != "" {
		filter.Roles = []string{role}
	}
	filter.Clean()

	users, err := cli.usrSvc.Query(context.Background(), filter, core.ParseOrdering("username", "username"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tEMAIL\tFULL NAME\tROLE\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", u.Username, u.Email, u.FullName, u.Role, u.IsActive)
	}
	return w.Flush()
}

// deleteUser removes the profile and the account of a user.
func (cli *commandLine) deleteUser(uname string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if _, err = cli.usrSvc.Delete(ctx, user.SystemSession(), usr.ID); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted %s\n", usr.Username)
	return nil
}

// recreateUser drops a user and creates it again with the same profile and a new password.
// The user gets a fresh id and account.
func (cli *commandLine) recreateUser(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if _, err = cli.usrSvc.Delete(ctx, user.SystemSession(), usr.ID); err != nil {
		return err
	}
	return cli.addUser(usr.Username, usr.FullName, usr.Email, usr.Role, pwd)
}
