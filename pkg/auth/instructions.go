package auth

import (
	"fmt"
	"io"
	"strings"
)

// RegistrationURL is where ERS accounts are created
const RegistrationURL = "https://ers.cr.usgs.gov/register"

// PrintLoginHelp explains which credentials the ESPA service expects and
// where they are kept once stored
func PrintLoginHelp(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "ESPA CREDENTIALS")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ESPA uses your USGS EROS Registration System (ERS) login, the same")
	fmt.Fprintln(w, "username and password used to place orders on the ESPA website.")
	fmt.Fprintf(w, "No account yet? Register at %s\n", RegistrationURL)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Stored credentials are kept in the system keyring when one is")
	fmt.Fprintln(w, "available, otherwise in an encrypted file in the espadl config")
	fmt.Fprintln(w, "directory. For unattended runs you can instead export:")
	fmt.Fprintf(w, "  %s and %s\n", EnvUsername, EnvPassword)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
}
