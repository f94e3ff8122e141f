// Command billingctl is the operator CLI for the Litmus billing service.
//
//	billingctl plans                          print the plan catalog as JSON
//	billingctl check-stripe                   verify the configured Stripe key
//	billingctl sign-webhook event.json        print a Stripe-Signature header
//	billingctl sign-webhook event.json --post http://localhost:8080/stripe-webhook
//
// Configuration is read the same way as the API (environment, then .env).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"litmus/internal/billing"
	"litmus/internal/config"
	"litmus/internal/external"
	"litmus/internal/types"
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// productLister is the part of the Stripe client check-stripe needs.
type productLister interface {
	ListProducts(ctx context.Context, limit int) ([]external.Product, error)
}

// app carries the injectable dependencies of every subcommand.
type app struct {
	out        io.Writer
	loadConfig func() (*config.Config, error)
	newStripe  func(cfg *config.Config) productLister
	httpClient *http.Client
	now        func() time.Time
}

func defaultApp(out io.Writer) *app {
	return &app{
		out:        out,
		loadConfig: func() (*config.Config, error) { return config.LoadConfig(nil) },
		newStripe: func(cfg *config.Config) productLister {
			return external.NewStripeClient(
				&http.Client{Timeout: cfg.Stripe.Timeout},
				external.StripeClientConfig{
					SecretKey: cfg.Stripe.SecretKey.Unmask(),
					BaseURL:   cfg.Stripe.APIBase,
				},
			)
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

func main() {
	os.Exit(run(defaultApp(os.Stdout), os.Args[1:], os.Stderr))
}

// run executes the command line and returns the process exit code. Every
// error, including cobra's own argument and unknown-command errors, is
// printed to stderr once.
func run(a *app, args []string, stderr io.Writer) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee *exitErr
	if errors.As(err, &ee) {
		fmt.Fprintln(stderr, "Error:", ee.msg)
		return ee.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operate the Litmus billing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)

	root.AddCommand(
		&cobra.Command{
			Use:   "plans",
			Short: "Print the plan catalog as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runPlans()
			},
		},
		&cobra.Command{
			Use:   "check-stripe",
			Short: "List one Stripe product to verify the configured secret key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runCheckStripe(cmd.Context())
			},
		},
		newSignWebhookCmd(a),
	)
	return root
}

func (a *app) runPlans() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return codeError(3, "loading config: %s", err)
	}

	views := billing.DefaultCatalog().Views(billing.Availability{
		SecretKeyPresent: cfg.Stripe.Configured(),
		MockMode:         cfg.Stripe.MockEnabled(),
	})
	return a.printJSON(views)
}

// stripeCheck is the check-stripe output.
type stripeCheck struct {
	Status        string `json:"status"`
	SecretKey     string `json:"secret_key"`
	ProductsCount int    `json:"products_count,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

func (a *app) runCheckStripe(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return codeError(3, "loading config: %s", err)
	}
	if !cfg.Stripe.Configured() {
		return codeError(3, "STRIPE_SECRET_KEY is not set")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res := stripeCheck{Status: "SUCCESS", SecretKey: cfg.Stripe.SecretKey.Preview()}
	products, err := a.newStripe(cfg).ListProducts(ctx, 1)
	if err != nil {
		res.Status = "FAILED"
		res.Error = err.Error()
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			res.Code = string(appErr.Code)
		}
		if printErr := a.printJSON(res); printErr != nil {
			return printErr
		}
		return codeError(2, "stripe connection failed")
	}
	res.ProductsCount = len(products)
	return a.printJSON(res)
}

func newSignWebhookCmd(a *app) *cobra.Command {
	var postURL string

	cmd := &cobra.Command{
		Use:   "sign-webhook <payload.json>",
		Short: "Sign an event payload with STRIPE_WEBHOOK_SECRET",
		Long: "Prints a Stripe-Signature header valid for the payload. With --post the " +
			"signed payload is delivered to the given webhook URL and the response is printed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSignWebhook(cmd.Context(), args[0], postURL)
		},
	}
	cmd.Flags().StringVar(&postURL, "post", "", "Deliver the signed payload to this URL")
	return cmd
}

func (a *app) runSignWebhook(ctx context.Context, path, postURL string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return codeError(3, "loading config: %s", err)
	}
	if !cfg.Stripe.WebhookSecret.IsSet() {
		return codeError(3, "STRIPE_WEBHOOK_SECRET is not set")
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return codeError(3, "reading payload: %s", err)
	}
	if !json.Valid(payload) {
		return codeError(3, "%s is not valid JSON", path)
	}

	header := external.SignPayload(payload, cfg.Stripe.WebhookSecret.Unmask(), a.now())
	if postURL == "" {
		fmt.Fprintln(a.out, header)
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(payload))
	if err != nil {
		return codeError(3, "building request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", header)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return codeError(4, "posting webhook: %s", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fmt.Fprintf(a.out, "%d %s\n", resp.StatusCode, bytes.TrimSpace(body))
	if resp.StatusCode >= 300 {
		return codeError(2, "webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
