// Command intakechat is a terminal client for the portal's conversational intake.
// It drives the same session controller as the website widget.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils"
	"github.com/northbeam/portal-api/widget"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	apiURL      string
	name        string
	email       string
	inquiryType string
	sessionID   string
	company     string
	phone       string
	token       string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "intakechat",
	Short: "Chat with the intake assistant from a terminal",
	Long: `Opens an intake chat session against the portal API.

Type a message and press enter to send it.
  /upload <path>  attach a file to your next message
  /quit           close the chat`,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Portal API base URL")
	rootCmd.Flags().StringVar(&name, "name", "", "Your name")
	rootCmd.Flags().StringVar(&email, "email", "", "Your email address")
	rootCmd.Flags().StringVar(&inquiryType, "type", string(model.InquiryTypeCandidate), "Inquiry type: candidate or projectlead")
	rootCmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: random)")
	rootCmd.Flags().StringVar(&company, "company", "", "Company name")
	rootCmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	rootCmd.Flags().StringVar(&token, "token", "", "Widget session token (default: requested from the API)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	_ = rootCmd.MarkFlagRequired("name")
	_ = rootCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := utils.NewLogger("development")
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runChat(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	form := model.FormData{
		Name:        name,
		Email:       email,
		Type:        model.InquiryType(inquiryType),
		SessionID:   sessionID,
		CompanyName: company,
		Phone:       phone,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	orchestrator := widget.NewHTTPOrchestrator(apiURL, widget.WithBearerToken(token))
	if token == "" {
		if _, err := orchestrator.IssueToken(ctx, form); err != nil {
			var apiErr *widget.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
				fmt.Fprintf(os.Stderr, "warning: could not obtain a session token: %v\n", err)
			}
		}
	}

	out := newConsole(cmd.OutOrStdout())
	launcher := widget.NewLauncher(orchestrator,
		widget.WithLogger(logger),
		widget.WithChangeListener(out.onChange),
	)

	session, err := launcher.Open(ctx, widget.OpenSessionCommand{Form: form})
	if err != nil {
		return err
	}
	defer session.Stop()

	return out.run(ctx, session, readLines(cmd.InOrStdin()), os.ReadFile)
}

// readLines feeds stdin to a channel so the chat loop can also react to the
// session completing on its own.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
