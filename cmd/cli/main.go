// Command sortctl is a CLI client for the SortWatch service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/sortwatch/internal/api"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken   string    `json:"access_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	CollectorName string    `json:"collector_name,omitempty"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "sortwatch")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sortwatch")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), append(b, '\n'), 0o600)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

type dialOpts struct {
	addr      string
	caPath    string
	skipTLS   bool
	plaintext bool
}

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(ctx context.Context, o dialOpts, bearer string) (*grpc.ClientConn, *api.Client, error) {
	var opts []grpc.DialOption
	if o.plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := loadTLS(o.caPath, o.skipTLS)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.plaintext}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x
	cc, err := grpc.DialContext(ctx, o.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, api.NewClient(cc), nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// parseIDs reads a comma separated list of bin ids.
func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad bin id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseWindow turns optional RFC3339 bounds into a wire window.
func parseWindow(since, until string) (*api.Window, error) {
	if since == "" && until == "" {
		return nil, nil
	}
	var w api.Window
	for _, b := range []struct {
		raw string
		dst **time.Time
	}{{since, &w.Start}, {until, &w.End}} {
		if b.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, b.raw)
		if err != nil {
			return nil, fmt.Errorf("bad time %q: %w", b.raw, err)
		}
		*b.dst = &t
	}
	return &w, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `sortctl CLI
Usage:
  sortctl -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  request-code -email <email>
  login        -email <email> -code <code>     (saves token)
  login        -token <jwt> [-expires RFC3339] (saves token)
  status
  resolve      -category <label>
  agg          -bins 1,2 [-since RFC3339] [-until RFC3339]
  fill         [-bins 1,2] [-since RFC3339] [-until RFC3339]
  drain        -bin-name <name> -category <label>
  log
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	var o dialOpts
	flag.StringVar(&o.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&o.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&o.skipTLS, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&o.plaintext, "plaintext", false, "connect without TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Printf("sortctl %s (%s)\n", version, buildDate)
	case "request-code":
		cmdRequestCode(ctx, o, args)
	case "login":
		cmdLogin(ctx, o, args)
	case "status":
		cli, done := mustDial(ctx, o, "")
		defer done()
		out, err := cli.DeviceStatus(ctx, &api.DeviceStatusRequest{})
		if err != nil {
			fail(err)
		}
		printJSON(out)
	case "resolve":
		fs := flag.NewFlagSet("resolve", flag.ExitOnError)
		c := fs.String("category", "", "category label")
		_ = fs.Parse(args)

		cli, done := mustDial(ctx, o, "")
		defer done()
		out, err := cli.ResolveBin(ctx, &api.ResolveBinRequest{Category: *c})
		if err != nil {
			fail(err)
		}
		printJSON(out)
	case "agg":
		cmdAggregate(ctx, o, args)
	case "fill":
		cmdFill(ctx, o, args)
	case "drain":
		cmdDrain(ctx, o, args)
	case "log":
		cli, done := mustDial(ctx, o, "")
		defer done()
		out, err := cli.ReadLog(ctx, &api.ReadLogRequest{})
		if err != nil {
			fail(err)
		}
		printJSON(out.Entries)
	default:
		usage()
	}
}

func mustDial(ctx context.Context, o dialOpts, bearer string) (*api.Client, func()) {
	cc, cli, err := dial(ctx, o, bearer)
	if err != nil {
		fail(err)
	}
	return cli, func() { _ = cc.Close() }
}

func cmdRequestCode(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("request-code", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	_ = fs.Parse(args)
	if *email == "" {
		fmt.Fprintln(os.Stderr, "need -email")
		os.Exit(1)
	}

	cli, done := mustDial(ctx, o, "")
	defer done()
	if _, err := cli.RequestCode(ctx, &api.RequestCodeRequest{Email: *email}); err != nil {
		fail(err)
	}
	fmt.Println("code sent")
}

func cmdLogin(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	code := fs.String("code", "", "one-time code")
	token := fs.String("token", "", "existing bearer token")
	expires := fs.String("expires", "", "token expiry (RFC3339), default 12h")
	_ = fs.Parse(args)

	if *token != "" {
		exp := time.Now().Add(12 * time.Hour)
		if *expires != "" {
			t, err := time.Parse(time.RFC3339, *expires)
			if err != nil {
				fail(err)
			}
			exp = t
		}
		if err := saveToken(tokenFile{AccessToken: *token, ExpiresAt: exp}); err != nil {
			fail(err)
		}
		fmt.Println("ok")
		return
	}
	if *email == "" || *code == "" {
		fmt.Fprintln(os.Stderr, "need -email and -code, or -token")
		os.Exit(1)
	}

	cli, done := mustDial(ctx, o, "")
	defer done()
	vr, err := cli.VerifyCode(ctx, &api.VerifyCodeRequest{Email: *email, Code: *code})
	if err != nil {
		fail(err)
	}
	sess, err := cli.IssueSession(ctx, &api.IssueSessionRequest{Token: vr.Token})
	if err != nil {
		fail(err)
	}
	if err := saveToken(tokenFile{AccessToken: sess.AccessToken, ExpiresAt: sess.ExpiresAt, CollectorName: sess.CollectorName}); err != nil {
		fail(err)
	}
	fmt.Printf("logged in as %s\n", sess.CollectorName)
}

func cmdAggregate(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("agg", flag.ExitOnError)
	bins := fs.String("bins", "", "comma separated bin ids")
	since := fs.String("since", "", "window start (RFC3339)")
	until := fs.String("until", "", "window end (RFC3339)")
	_ = fs.Parse(args)

	ids, err := parseIDs(*bins)
	if err != nil {
		fail(err)
	}
	w, err := parseWindow(*since, *until)
	if err != nil {
		fail(err)
	}

	cli, done := mustDial(ctx, o, "")
	defer done()
	out, err := cli.Aggregate(ctx, &api.AggregateRequest{BinIDs: ids, Window: w})
	if err != nil {
		fail(err)
	}
	printJSON(out.Buckets)
}

func cmdFill(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("fill", flag.ExitOnError)
	bins := fs.String("bins", "", "comma separated bin ids (default: all active)")
	since := fs.String("since", "", "window start (RFC3339)")
	until := fs.String("until", "", "window end (RFC3339)")
	_ = fs.Parse(args)

	ids, err := parseIDs(*bins)
	if err != nil {
		fail(err)
	}
	w, err := parseWindow(*since, *until)
	if err != nil {
		fail(err)
	}

	cli, done := mustDial(ctx, o, "")
	defer done()
	out, err := cli.BinFill(ctx, &api.BinFillRequest{BinIDs: ids, Window: w})
	if err != nil {
		fail(err)
	}
	for _, b := range out.Bins {
		fmt.Printf("%-4d %-20s %-8s %3d%%  (%d items)\n", b.BinID, b.Name, b.Status, b.FillPercentage, b.Count)
		for _, c := range b.Categories {
			fmt.Printf("       %-18s %3d%%  (%d)\n", c.Category, c.FillPercentage, c.Count)
		}
	}
}

func cmdDrain(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("drain", flag.ExitOnError)
	binName := fs.String("bin-name", "", "drained bin name")
	cat := fs.String("category", "", "bin category")
	_ = fs.Parse(args)
	if *binName == "" {
		fmt.Fprintln(os.Stderr, "need -bin-name")
		os.Exit(1)
	}

	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	cli, done := mustDial(ctx, o, token)
	defer done()
	out, err := cli.AppendLog(ctx, &api.AppendLogRequest{Drains: []api.Drain{{Category: *cat, BinName: *binName}}})
	if err != nil {
		fail(err)
	}
	printJSON(out.Entries)
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
