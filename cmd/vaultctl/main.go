package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"tablevault/pkg/vaultclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err := run(ctx, os.Args[1], os.Args[2:], os.Stdout)
	cancel()

	if errors.Is(err, errUsage) {
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  register     Create an account (-email, -password)")
	fmt.Fprintln(os.Stderr, "  verify       Verify the emailed code (-email, -otp)")
	fmt.Fprintln(os.Stderr, "  resend       Send a new code (-email)")
	fmt.Fprintln(os.Stderr, "  login        Obtain a token pair (-email, -password)")
	fmt.Fprintln(os.Stderr, "  refresh      Exchange a refresh token (-refresh-token)")
	fmt.Fprintln(os.Stderr, "  upload-csv   Store a CSV file as a table (-table, -file)")
	fmt.Fprintln(os.Stderr, "  schema       Show a table's columns (-table)")
	fmt.Fprintln(os.Stderr, "  rows         Page through a table (-table, -page, -page-size)")
	fmt.Fprintln(os.Stderr, "  delete-account  Remove the account and all its data (-yes)")
	os.Exit(2)
}

type commonOpts struct {
	baseURL string
	token   string
}

func newFlagSet(name string, o *commonOpts) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.baseURL, "base-url", getenv("VAULTCTL_BASE_URL", vaultclient.DefaultBaseURL), "tablevault base URL")
	fs.StringVar(&o.token, "token", os.Getenv("VAULTCTL_TOKEN"), "access token for protected commands")
	return fs
}

func (o commonOpts) client() *vaultclient.Client {
	return vaultclient.New(o.baseURL, vaultclient.WithToken(o.token))
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	var o commonOpts
	fs := newFlagSet(cmd, &o)

	var (
		result any
		err    error
	)

	switch cmd {
	case "register", "login":
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("email", *email, "password", *password); err != nil {
			return err
		}
		if cmd == "register" {
			result, err = o.client().Register(ctx, *email, *password)
		} else {
			result, err = o.client().Login(ctx, *email, *password)
		}

	case "verify":
		email := fs.String("email", "", "account email")
		code := fs.String("otp", "", "code from the verification email")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("email", *email, "otp", *code); err != nil {
			return err
		}
		result, err = o.client().VerifyOTP(ctx, *email, *code)

	case "resend":
		email := fs.String("email", "", "account email")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("email", *email); err != nil {
			return err
		}
		result, err = o.client().ResendOTP(ctx, *email)

	case "refresh":
		rt := fs.String("refresh-token", "", "refresh token from login")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("refresh-token", *rt); err != nil {
			return err
		}
		result, err = o.client().Refresh(ctx, *rt)

	case "upload-csv":
		table := fs.String("table", "", "table name")
		path := fs.String("file", "", "path to the CSV file")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("table", *table, "file", *path, "token", o.token); err != nil {
			return err
		}
		f, ferr := os.Open(*path)
		if ferr != nil {
			return ferr
		}
		defer func() { _ = f.Close() }()
		result, err = o.client().UploadCSV(ctx, *table, filepath.Base(*path), f)

	case "schema":
		table := fs.String("table", "", "table name")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("table", *table, "token", o.token); err != nil {
			return err
		}
		result, err = o.client().Schema(ctx, *table)

	case "rows":
		table := fs.String("table", "", "table name")
		page := fs.Int("page", 1, "page number, starting at 1")
		size := fs.Int("page-size", 0, "rows per page (server default when 0)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("table", *table, "token", o.token); err != nil {
			return err
		}
		result, err = o.client().Rows(ctx, *table, *page, *size)

	case "delete-account":
		yes := fs.Bool("yes", false, "confirm deletion")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("token", o.token); err != nil {
			return err
		}
		if !*yes {
			return errors.New("refusing to delete without -yes")
		}
		result, err = o.client().DeleteAccount(ctx)

	default:
		return errUsage
	}

	if err != nil {
		return err
	}
	return printJSON(out, result)
}

// required takes name/value pairs and reports the first empty value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("-%s is required", pairs[i])
		}
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
