package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gatherhq/gather/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "auth",
	Short:   "Sign in to the gather server",
	Long: `Sign in and store the session in the system keyring.

With no flags an interactive form is shown. In scripts, pass --email and
pipe the password to --password-stdin.`,
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		passwordStdin, _ := cmd.Flags().GetBool("password-stdin")

		var password string
		switch {
		case passwordStdin:
			scanner := bufio.NewScanner(os.Stdin)
			if scanner.Scan() {
				password = strings.TrimSpace(scanner.Text())
			}
			if email == "" {
				fatal("--password-stdin requires --email")
			}
		case email != "":
			password = promptPassword()
		default:
			email, password = loginForm()
		}

		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		s, err := a.service.SignIn(cmd.Context(), email, password)
		if err != nil {
			fatal("sign-in failed: %v", err)
		}

		fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), s.User.Email)
	},
}

var registerCmd = &cobra.Command{
	Use:     "register",
	GroupID: "auth",
	Short:   "Create an account (and sign in)",
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")

		var password string
		if email == "" {
			email, password = loginForm()
		} else {
			password = promptPassword()
		}

		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		s, err := a.service.SignUp(cmd.Context(), email, password, name)
		if err != nil {
			fatal("registration failed: %v", err)
		}

		fmt.Printf("%s Account created, signed in as %s\n", ui.RenderPass("✓"), s.User.Email)
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "auth",
	Short:   "Sign out and clear local data",
	Long: `Clear the stored session and wipe the local cache.

The server is notified best-effort; local state is gone regardless of
whether that notification succeeds.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		a.service.SignOut(cmd.Context())
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "auth",
	Short:   "Show the current user",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		user := a.service.CurrentUser()
		if user == nil {
			fmt.Printf("%s Not signed in\n", ui.RenderWarn("⚠"))
			return
		}
		fmt.Printf("%s", user.Email)
		if user.DisplayName != "" {
			fmt.Printf(" (%s)", user.DisplayName)
		}
		fmt.Println()
	},
}

// loginForm collects credentials interactively.
func loginForm() (email, password string) {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&email),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		fatal("%v", err)
	}
	return email, password
}

// promptPassword reads the password without echo, falling back to plain
// stdin when not attached to a terminal.
func promptPassword() string {
	fmt.Fprint(os.Stderr, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fatal("failed to read password: %v", err)
		}
		return string(data)
	}
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

func init() {
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().Bool("password-stdin", false, "Read the password from stdin")
	registerCmd.Flags().String("email", "", "Account email")
	registerCmd.Flags().String("name", "", "Display name")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
