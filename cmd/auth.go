package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/ticktick-mcp/internal/auth"
)

// credentialFlags holds the flags shared by the serve and auth commands
// for building the OAuth2 credential store.
type credentialFlags struct {
	clientID     string
	clientSecret string
	redirectURL  string
	tokenFile    string
	useKeyring   bool
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "TickTick OAuth client ID. Can also use TICKTICK_CLIENT_ID env var.")
	cmd.Flags().StringVar(&f.clientSecret, "client-secret", "", "TickTick OAuth client secret. Can also use TICKTICK_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&f.redirectURL, "redirect-url", "", "OAuth redirect URL registered with the TickTick developer console.")
	cmd.Flags().StringVar(&f.tokenFile, "token-file", "", "Path to the credential file (default: OS cache dir). Ignored with --use-keyring.")
	cmd.Flags().BoolVar(&f.useKeyring, "use-keyring", false, "Store credentials in the OS keyring instead of a file.")
}

// buildStore constructs the credential store from flags, falling back to
// environment variables for the client credentials.
func (f *credentialFlags) buildStore() (*auth.Store, error) {
	clientID := f.clientID
	if clientID == "" {
		clientID = os.Getenv("TICKTICK_CLIENT_ID")
	}
	clientSecret := f.clientSecret
	if clientSecret == "" {
		clientSecret = os.Getenv("TICKTICK_CLIENT_SECRET")
	}

	var storage auth.Storage
	if f.useKeyring {
		storage = auth.NewKeyringStorage("", "")
	} else {
		fileStorage, err := auth.NewFileStorage(f.tokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to set up credential file storage: %w", err)
		}
		storage = fileStorage
	}

	return auth.NewStore(auth.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  f.redirectURL,
	}, storage)
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage TickTick OAuth credentials",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var flags credentialFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run the OAuth authorization flow and store credentials",
		Long: `Run the TickTick OAuth2 authorization-code flow.

Prints the authorization URL, waits for the authorization code on
stdin, exchanges it for tokens, and persists them for later use by
the serve command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.buildStore()
			if err != nil {
				return err
			}

			fmt.Println("Visit this URL in your browser and authorize access:")
			fmt.Println()
			fmt.Printf("  %s\n", store.AuthURL("state"))
			fmt.Println()
			fmt.Print("Enter the authorization code: ")

			reader := bufio.NewReader(cmd.InOrStdin())
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}

			if err := store.Bootstrap(cmd.Context(), code); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Println("Credentials stored. You can now run 'ticktick-mcp serve'.")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	var flags credentialFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.buildStore()
			if err != nil {
				return err
			}

			if !store.HasCredentials() {
				fmt.Println("No credentials stored. Run 'ticktick-mcp auth login' first.")
				return nil
			}

			creds, err := store.Credentials()
			if err != nil {
				return fmt.Errorf("failed to load credentials: %w", err)
			}

			fmt.Println("Credentials: stored")
			if creds.Expiry.IsZero() {
				fmt.Println("Access token: expiry unknown")
			} else if time.Now().After(creds.Expiry) {
				fmt.Printf("Access token: expired at %s (will refresh on next use)\n", creds.Expiry.Format(time.RFC3339))
			} else {
				fmt.Printf("Access token: valid until %s\n", creds.Expiry.Format(time.RFC3339))
			}
			if creds.RefreshToken == "" {
				fmt.Println("Refresh token: missing (re-run 'ticktick-mcp auth login')")
			} else {
				fmt.Println("Refresh token: stored")
			}

			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ticktick-mcp version %s\n", version)
		},
	}
}
