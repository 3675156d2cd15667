package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	GoogleLogin(ctx context.Context, args []string) error
	GitHubLogin(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	Renew(ctx context.Context) error
	Status(ctx context.Context) error
	Credits(ctx context.Context) error
	Refresh(ctx context.Context) error
	CheckURL(ctx context.Context, args []string) error
	Audit(ctx context.Context, args []string) error
	Activate(ctx context.Context, args []string) error
}

// runREPL reads commands line by line from r and dispatches them to a.
// The loop exits on EOF or when the user types "exit" or "quit".
//
//	Signed out:
//	  - login              sign in with email and password
//	  - google [cred]      sign in with a Google credential
//	  - github             sign in through GitHub
//	  - check <url>        pre-check an audit target
//	  - status
//
//	Signed in, additionally:
//	  - renew              extend the session, required once it is expiring
//	  - credits | refresh  show or re-fetch the subscription
//	  - audit <url>        validate, confirm and start an audit
//	  - activate <id>      activate a paid subscription
//	  - logout
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, r *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("aivedha %s > ", statusFn()))
		line, err := r.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: status, renew, credits, refresh, check, audit, activate, logout, exit")
			} else {
				printlnFn("Available commands: login, google, github, check, status, exit")
			}

		case "login":
			cmdErr = a.Login(ctx)
		case "google":
			cmdErr = a.GoogleLogin(ctx, args)
		case "github":
			cmdErr = a.GitHubLogin(ctx, args)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "renew":
			cmdErr = a.Renew(ctx)
		case "status", "s":
			cmdErr = a.Status(ctx)
		case "credits":
			cmdErr = a.Credits(ctx)
		case "refresh":
			cmdErr = a.Refresh(ctx)
		case "check":
			cmdErr = a.CheckURL(ctx, args)
		case "audit":
			cmdErr = a.Audit(ctx, args)
		case "activate":
			cmdErr = a.Activate(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
		if err != nil {
			return
		}
	}
}
