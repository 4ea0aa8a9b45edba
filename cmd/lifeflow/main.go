package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lifeflow/lifeflow/internal/authapi"
	"github.com/lifeflow/lifeflow/internal/config"
	"github.com/lifeflow/lifeflow/internal/httpclient"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/lifeflow/lifeflow/internal/signup"
	"github.com/sirupsen/logrus"
)

type command struct {
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

type env struct {
	cfg    *config.ClientConfig
	api    *authapi.API
	logger *logrus.Logger
	stdin  io.Reader
	stdout io.Writer
}

var commands = map[string]command{
	"signin":         {usage: "signin <identifier> <password>", run: signIn},
	"signup":         {usage: "signup -first NAME -last NAME -dob YYYY-MM-DD -gender MALE|FEMALE|OTHER -username NAME -email ADDRESS -password SECRET", run: signUp},
	"check-username": {usage: "check-username <username>", run: checkUsername},
	"check-email":    {usage: "check-email <email>", run: checkEmail},
	"watch-username": {usage: "watch-username   (reads candidates from stdin)", run: watch("username")},
	"watch-email":    {usage: "watch-email      (reads candidates from stdin)", run: watch("email")},
	"me":             {usage: "me <identifier> <password>", run: me},
	"refresh":        {usage: "refresh <identifier> <password>", run: refresh},
	"signout":        {usage: "signout <identifier> <password>", run: signOut},
}

func help() {
	fmt.Println("Usage: lifeflow [-url URL] [-timeout DURATION] [-v] <command> [args]")
	fmt.Println()
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println("  lifeflow " + commands[name].usage)
	}
}

func main() {
	apiURL := flag.String("url", "", "Base URL of the Life Flow API (overrides LIFEFLOW_API_URL).")
	timeout := flag.Duration("timeout", 0, "Request timeout (overrides LIFEFLOW_REQUEST_TIMEOUT).")
	verbose := flag.Bool("v", false, "Log debug output to stderr.")
	helpFlag := flag.Bool("help", false, "Print help message.")
	flag.BoolVar(helpFlag, "h", false, "")

	flag.Parse()

	if *helpFlag || flag.NArg() < 1 {
		help()
		return
	}

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		help()
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	cfg, err := config.LoadClient()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if *timeout > 0 {
		cfg.RequestTimeout = *timeout
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if *verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	api, err := authapi.NewFromConfig(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create API client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e := &env{cfg: cfg, api: api, logger: logger, stdin: os.Stdin, stdout: os.Stdout}
	if err := cmd.run(ctx, e, flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

// describe renders err the way the API reported it.
func describe(err error) string {
	var verr *signup.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}

	var apiErr *httpclient.Error
	if errors.As(err, &apiErr) {
		switch {
		case errors.Is(err, httpclient.ErrNoResponse):
			return "No response from server: " + apiErr.Error()
		case apiErr.Code != "":
			return fmt.Sprintf("%s (%s, status %d)", apiErr.Message, apiErr.Code, apiErr.Status)
		}
	}
	return err.Error()
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func credentials(args []string) (models.SignInRequest, error) {
	if len(args) != 2 {
		return models.SignInRequest{}, errors.New("expected <identifier> <password>")
	}
	return models.SignInRequest{Identifier: args[0], Password: args[1]}, nil
}

func signIn(ctx context.Context, e *env, args []string) error {
	req, err := credentials(args)
	if err != nil {
		return err
	}
	res, err := e.api.SignIn(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(e.stdout, res)
}

func signUp(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	first := fs.String("first", "", "First name.")
	last := fs.String("last", "", "Last name.")
	dob := fs.String("dob", "", "Date of birth, YYYY-MM-DD.")
	gender := fs.String("gender", "", "MALE, FEMALE or OTHER.")
	username := fs.String("username", "", "Username.")
	email := fs.String("email", "", "Email address.")
	password := fs.String("password", "", "Password.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var birth time.Time
	if *dob != "" {
		parsed, err := time.Parse(time.DateOnly, *dob)
		if err != nil {
			return fmt.Errorf("invalid -dob %q: %w", *dob, err)
		}
		birth = parsed
	}

	w := signup.New(e.api, e.logger)
	steps := []signup.StepInput{
		signup.NameInput{FirstName: *first, LastName: *last},
		signup.BirthInput{DateOfBirth: birth},
		signup.GenderInput{Gender: strings.ToUpper(*gender)},
		signup.AccountInput{Username: *username, EmailAddress: *email},
	}
	for _, step := range steps {
		if err := w.Next(ctx, step); err != nil {
			return fmt.Errorf("step %d of %d: %w", w.Step(), signup.StepCount, err)
		}
	}

	res, err := w.Submit(ctx, signup.PasswordInput{Password: *password, Confirm: *password})
	if err != nil {
		return err
	}
	return printJSON(e.stdout, res)
}

func checkUsername(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("expected <username>")
	}
	return printAvailability(e.stdout, args[0])(e.api.CheckUsername(ctx, args[0]))
}

func checkEmail(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("expected <email>")
	}
	return printAvailability(e.stdout, args[0])(e.api.CheckEmail(ctx, args[0]))
}

func printAvailability(w io.Writer, value string) func(bool, error) error {
	return func(free bool, err error) error {
		if err != nil {
			return err
		}
		state := "taken"
		if free {
			state = "available"
		}
		_, err = fmt.Fprintf(w, "%s: %s\n", value, state)
		return err
	}
}

// watch feeds each stdin line to a debounced availability check, the way a
// form field does while the user types.
func watch(field string) func(ctx context.Context, e *env, args []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		check := e.api.CheckUsername
		if field == "email" {
			check = e.api.CheckEmail
		}

		var (
			mu   sync.Mutex
			last signup.CheckState
		)
		settled := func() bool {
			mu.Lock()
			defer mu.Unlock()
			return !last.Checking
		}

		d := signup.NewDebouncedCheck(check, e.cfg.CheckDebounce, e.logger)
		defer d.Stop()
		d.OnChange(func(s signup.CheckState) {
			mu.Lock()
			defer mu.Unlock()
			prev := last
			last = s
			switch {
			case s.Checking:
				fmt.Fprintf(e.stdout, "checking %s...\n", field)
			case !prev.Checking:
				// input too short to check
			case s.Err != nil:
				fmt.Fprintf(e.stdout, "check failed: %s\n", describe(s.Err))
			case s.Conflict:
				fmt.Fprintf(e.stdout, "%s already exists\n", field)
			default:
				fmt.Fprintf(e.stdout, "%s is available\n", field)
			}
		})

		scanner := bufio.NewScanner(e.stdin)
		for scanner.Scan() {
			d.Set(strings.TrimSpace(scanner.Text()))
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.After(e.cfg.CheckDebounce + e.cfg.RequestTimeout)
		for !settled() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline:
				return errors.New("timed out waiting for the last check")
			case <-ticker.C:
			}
		}
		return nil
	}
}

func me(ctx context.Context, e *env, args []string) error {
	if err := signInQuietly(ctx, e, args); err != nil {
		return err
	}
	profile, err := e.api.Me(ctx)
	if err != nil {
		return err
	}
	return printJSON(e.stdout, profile)
}

func refresh(ctx context.Context, e *env, args []string) error {
	if err := signInQuietly(ctx, e, args); err != nil {
		return err
	}
	token, err := e.api.Refresh(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.stdout, token)
	return err
}

func signOut(ctx context.Context, e *env, args []string) error {
	if err := signInQuietly(ctx, e, args); err != nil {
		return err
	}
	if err := e.api.SignOut(ctx); err != nil {
		return err
	}
	_, err := fmt.Fprintln(e.stdout, "Signed out")
	return err
}

// signInQuietly starts a session for commands that need one. Tokens live in
// memory only, so every invocation signs in again.
func signInQuietly(ctx context.Context, e *env, args []string) error {
	req, err := credentials(args)
	if err != nil {
		return err
	}
	_, err = e.api.SignIn(ctx, req)
	return err
}
