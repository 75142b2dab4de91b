package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newSignupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup [username]",
		Short: "Create an account and sign in",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSignup,
	}

	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	return cmd
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in with a username and password",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLogin,
	}

	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the saved credential",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

// credentialPrompt reads a username and password. On a terminal the
// password is read without echo; otherwise both are read as lines.
type credentialPrompt struct {
	in    *bufio.Reader
	out   io.Writer
	fd    int
	isTTY bool
}

func newCredentialPrompt(cmd *cobra.Command) *credentialPrompt {
	in := cmd.InOrStdin()
	p := &credentialPrompt{in: bufio.NewReader(in), out: cmd.ErrOrStderr()}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.isTTY = true
	}

	return p
}

func (p *credentialPrompt) line(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(p.out, prompt)
	}

	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimRight(s, "\r\n"), nil
}

func (p *credentialPrompt) password(prompt string) (string, error) {
	if !p.isTTY {
		return p.line("")
	}

	fmt.Fprint(p.out, prompt)

	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(b), nil
}

// readCredentials returns the username from args or a prompt, then the
// password.
func readCredentials(cmd *cobra.Command, args []string) (string, string, error) {
	p := newCredentialPrompt(cmd)

	fromStdin, err := cmd.Flags().GetBool("password-stdin")
	if err != nil {
		return "", "", err
	}

	if fromStdin {
		p.isTTY = false
	}

	username := ""
	if len(args) > 0 {
		username = args[0]
	} else {
		if fromStdin {
			return "", "", errors.New("--password-stdin requires the username as an argument")
		}

		if username, err = p.line("Username: "); err != nil {
			return "", "", err
		}
	}

	if strings.TrimSpace(username) == "" {
		return "", "", errors.New("username must not be empty")
	}

	password, err := p.password("Password: ")
	if err != nil {
		return "", "", err
	}

	return username, password, nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	username, password, err := readCredentials(cmd, args)
	if err != nil {
		return err
	}

	return withApp(cmd.Context(), func(a *app) error {
		sess, err := a.session.Signup(cmd.Context(), a.client, username, password)
		if err != nil {
			return err
		}

		a.cc.Statusf("Signed up and logged in as %s.\n", sess.Identity.Subject)

		return nil
	})
}

func runLogin(cmd *cobra.Command, args []string) error {
	username, password, err := readCredentials(cmd, args)
	if err != nil {
		return err
	}

	return withApp(cmd.Context(), func(a *app) error {
		sess, err := a.session.Login(cmd.Context(), a.client, username, password)
		if err != nil {
			return err
		}

		a.cc.Statusf("Logged in as %s.\n", sess.Identity.Subject)

		return nil
	})
}

func runLogout(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		_, had := a.session.Current()

		if err := a.session.Logout(); err != nil {
			return err
		}

		if had {
			a.cc.Statusf("Logged out.\n")
		} else {
			a.cc.Statusf("Not logged in.\n")
		}

		return nil
	})
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Username  string     `json:"username"`
	Server    string     `json:"server"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		sess, err := a.requireSession()
		if err != nil {
			return err
		}

		out := whoamiOutput{
			Username: sess.Identity.Subject,
			Server:   a.cc.Cfg.ServerURL,
		}

		if !sess.ExpiresAt.IsZero() {
			exp := sess.ExpiresAt.UTC()
			out.ExpiresAt = &exp
		}

		if a.cc.Flags.JSON {
			return printJSON(a.cc.Stdout, out)
		}

		printWhoamiText(a.cc.Stdout, out)

		return nil
	})
}

func printWhoamiText(w io.Writer, out whoamiOutput) {
	fmt.Fprintf(w, "User:    %s\n", out.Username)
	fmt.Fprintf(w, "Server:  %s\n", out.Server)

	if out.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires: %s (in %s)\n",
			out.ExpiresAt.Local().Format(time.DateTime),
			time.Until(*out.ExpiresAt).Round(time.Minute))
	}
}
