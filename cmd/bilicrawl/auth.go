package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bilicrawl/pkg/credential"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Bilibili credentials",
	Long: `Manage the stored Bilibili credential bundle.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation

The bundle holds the SESSDATA, bili_jct, buvid3, and DedeUserID cookies
plus the ac_time_value refresh token. Never share these values!`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store Bilibili credentials securely",
	Long: `Store the Bilibili cookie bundle in the system keychain or an
encrypted file.

To get these values:
1. Log into bilibili.com in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies > https://www.bilibili.com
4. Copy the SESSDATA, bili_jct, buvid3, and DedeUserID values
5. ac_time_value lives under Local Storage (needed for auto-refresh)`,
	Run: runAuthLogin,
}

var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored credential (masked)",
	Run:   runAuthShow,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored credential",
	Run:   runAuthDelete,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authDeleteCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) {
	store, err := credential.NewDefaultStore()
	if err != nil {
		fatal("failed to open credential store", err)
	}

	reader := bufio.NewReader(os.Stdin)

	if store.Exists() {
		fmt.Print("A credential is already stored. Replace it? (y/N): ")
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("Enter your cookie values (secrets are hidden as you type):")
	fmt.Println()

	cred := &credential.Credential{}

	for {
		fmt.Print("SESSDATA: ")
		cred.SESSDATA, err = readSecret()
		if err != nil {
			fatal("failed to read SESSDATA", err)
		}
		if cred.SESSDATA != "" {
			break
		}
		fmt.Println("SESSDATA is required.")
	}

	fmt.Print("bili_jct: ")
	cred.BiliJct, err = readSecret()
	if err != nil {
		fatal("failed to read bili_jct", err)
	}

	fmt.Print("buvid3: ")
	buvid3, _ := reader.ReadString('\n')
	cred.Buvid3 = strings.TrimSpace(buvid3)

	fmt.Print("DedeUserID: ")
	dedeUserID, _ := reader.ReadString('\n')
	cred.DedeUserID = strings.TrimSpace(dedeUserID)

	fmt.Print("ac_time_value (optional, enables auto-refresh): ")
	cred.AcTimeValue, err = readSecret()
	if err != nil {
		fatal("failed to read ac_time_value", err)
	}

	if err := store.Save(cred); err != nil {
		fatal("failed to store credential", err)
	}

	fmt.Println("\nCredential stored.")
	if !cred.CanRefresh() {
		fmt.Println("Note: without ac_time_value the credential cannot be auto-refreshed when it expires.")
	}
}

func runAuthShow(cmd *cobra.Command, args []string) {
	store, err := credential.NewDefaultStore()
	if err != nil {
		fatal("failed to open credential store", err)
	}

	cred, err := store.Load()
	if err != nil {
		fmt.Println("No credential stored. Use 'bilicrawl auth login' to add one.")
		return
	}

	masked := cred.Masked()
	fmt.Println("Stored credential:")
	fmt.Printf("  SESSDATA:      %s\n", masked.SESSDATA)
	fmt.Printf("  bili_jct:      %s\n", masked.BiliJct)
	fmt.Printf("  buvid3:        %s\n", masked.Buvid3)
	fmt.Printf("  DedeUserID:    %s\n", masked.DedeUserID)
	fmt.Printf("  ac_time_value: %s\n", masked.AcTimeValue)
	if cred.CanRefresh() {
		fmt.Println("\nAuto-refresh: available")
	} else {
		fmt.Println("\nAuto-refresh: unavailable (ac_time_value not set)")
	}
}

func runAuthDelete(cmd *cobra.Command, args []string) {
	store, err := credential.NewDefaultStore()
	if err != nil {
		fatal("failed to open credential store", err)
	}

	if !store.Exists() {
		fmt.Println("No credential stored.")
		return
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Remove the stored credential? (y/N): ")
	input, _ := reader.ReadString('\n')
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
		return
	}

	if err := store.Delete(); err != nil {
		fatal("failed to remove credential", err)
	}
	fmt.Println("Credential removed.")
}

// readSecret reads a value from stdin without echoing.
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(value)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
