package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"espadl/pkg/auth"
	"espadl/pkg/ui"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginHost string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage ESPA credentials",
	Long: `Manage stored ESPA (ERS) credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables ESPA_USERNAME and ESPA_PASSWORD (read only)

A stored account is used by 'espadl download' whenever --username or
--password is omitted.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store ESPA credentials",
	Example: `  # Interactive login
  espadl auth login

  # Login with username, prompting only for the password
  espadl auth login landsat_user`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Long: `Remove stored ESPA credentials.

Without a username the only stored account is removed after confirmation;
with several accounts stored, a username or --all is required.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var logoutAll bool

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd)

	loginCmd.Flags().StringVar(&loginHost, "host", "", "ESPA host these credentials belong to")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored account")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())
	auth.PrintLoginHelp(out)
	fmt.Fprintln(out)

	var name string
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}
	if name == "" {
		if name, err = prompt(out, reader, "ERS username: "); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}
	if name == "" {
		return errors.New("username is required")
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		answer, _ := prompt(out, reader, fmt.Sprintf("Account '%s' already exists. Update it? (y/N): ", name))
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
	}

	fmt.Fprint(out, "ERS password: ")
	pass, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if pass == "" {
		return errors.New("password is required")
	}

	if err := manager.Store(&auth.Account{Username: name, Password: pass, Host: loginHost}); err != nil {
		return err
	}

	ui.PrintSuccess("Account saved: " + name)
	fmt.Fprintln(out, "\nDownload without passing credentials:")
	fmt.Fprintln(out, "  espadl -e your_email@server.com -o ALL -d /some/directory")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if logoutAll {
		if err := manager.DeleteAll(); err != nil {
			return fmt.Errorf("failed to remove all accounts: %w", err)
		}
		ui.PrintSuccess("All accounts removed")
		return nil
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil || len(accounts) == 0 {
			ui.PrintWarning("No stored accounts found")
			return nil
		}
		if len(accounts) > 1 {
			return errors.New("several accounts are stored; name one or pass --all")
		}
		name = accounts[0].Username

		out := cmd.OutOrStdout()
		answer, _ := prompt(out, bufio.NewReader(cmd.InOrStdin()), fmt.Sprintf("Remove account '%s'? (y/N): ", name))
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
	}

	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'espadl auth login' to add one")
		return nil
	}

	out := cmd.OutOrStdout()
	ui.PrintHighlight("Stored Accounts")
	for i, account := range accounts {
		printAccount(out, i+1, auth.SanitizeAccount(account))
	}
	return nil
}

func printAccount(w io.Writer, n int, account *auth.Account) {
	fmt.Fprintf(w, "%d. Username: %s\n", n, account.Username)
	fmt.Fprintf(w, "   Password: %s\n", account.Password)
	if account.Host != "" {
		fmt.Fprintf(w, "   Host: %s\n", account.Host)
	}
	fmt.Fprintf(w, "   Last Modified: %s\n\n", humanize.Time(account.LastModified))
}

func prompt(w io.Writer, r *bufio.Reader, question string) (string, error) {
	fmt.Fprint(w, question)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal and falls back to a plain
// line otherwise
func readPassword(fallback *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pass, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return string(pass), nil
		}
	}

	line, err := fallback.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
