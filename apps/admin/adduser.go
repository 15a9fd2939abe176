package main

import (
	"context"
	"fmt"

	"github.com/halldesk/halldesk/core/user"
)

// addUser creates a user and its account on behalf of the system.
func (cli *commandLine) addUser(uname, fullName, email, role, pwd string) error {
	usr, err := cli.usrSvc.Create(context.Background(), user.SystemSession(), user.NewUser{
		Username: uname,
		Email:    email,
		FullName: fullName,
		Password: pwd,
		Role:     role,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s (%s) with id %s\n", usr.Username, usr.Role, usr.ID)
	return nil
}
