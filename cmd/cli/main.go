// Command bb is a CLI client for the benchboard intake service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/benchboard/internal/api/intakev1"
	"github.com/and161185/benchboard/internal/convert"
)

// ---- credential store ----

type credentialFile struct {
	TokenID        string `json:"token_id"`
	Secret         string `json:"secret"`
	ClaimCode      string `json:"claim_code,omitempty"`
	ClaimExpiresAt string `json:"claim_expires_at,omitempty"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "benchboard")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "benchboard")
}

func credentialPath() string { return filepath.Join(cfgDir(), "credential.json") }

func saveCredential(c credentialFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(credentialPath(), b, 0o600)
}

func loadCredential() (credentialFile, error) {
	var c credentialFile
	b, err := os.ReadFile(credentialPath())
	if err != nil {
		return c, fmt.Errorf("no credential (run register first): %w", err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	if c.Secret == "" {
		return c, errors.New("credential file has no secret")
	}
	return c, nil
}

// ---- grpc dial ----

func loadTLS(caPath string, skipVerify, plaintext bool) (credentials.TransportCredentials, error) {
	switch {
	case plaintext:
		return insecure.NewCredentials(), nil
	case skipVerify:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	case caPath == "":
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

func dial(addr, caPath string, skipVerify, plaintext bool) (*grpc.ClientConn, *intakev1.Client, error) {
	creds, err := loadTLS(caPath, skipVerify, plaintext)
	if err != nil {
		return nil, nil, err
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, err
	}
	return cc, intakev1.NewClient(cc), nil
}

func withBearer(ctx context.Context, secret string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, intakev1.AuthorizationHeader, "Bearer "+secret)
}

func withAssertion(ctx context.Context, raw string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, intakev1.AssertionHeader, raw)
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printStruct(w io.Writer, s *structpb.Struct) { printJSON(w, s.AsMap()) }

func usage() {
	fmt.Fprintf(os.Stderr, `bb CLI
Usage:
  bb -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  register                                      (saves credential)
  submit       -file <results.json|->
  get          -id <submission uuid>
  leaderboard  [-version v] [-provider p] [-verified] [-limit n]
  versions     [-all -assertion jwt]
  claim        -code <claim code> -assertion <jwt>
  confirm      -token <uuid> -assertion <jwt>     (admin)
  revert       -token <uuid> -assertion <jwt>     (admin)
  set-current  -version <v> -assertion <jwt>      (admin)
  hide|unhide  -version <v> -assertion <jwt>      (admin)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS for RPC calls.
func main() {
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "no TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("bb %s (%s)\n", version, buildDate)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cc, cli, err := dial(*addr, *caPath, *skipVerify, *plaintext)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	if err := run(ctx, cli, cmd, args, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage()
		}
		fail(err)
	}
}

// run executes one subcommand against cli and writes its result to w.
func run(ctx context.Context, cli *intakev1.Client, cmd string, args []string, w io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	file := fs.String("file", "-", "results JSON file or - for stdin")
	id := fs.String("id", "", "submission id")
	ver := fs.String("version", "", "benchmark version")
	provider := fs.String("provider", "", "provider filter")
	verified := fs.Bool("verified", false, "only claimed credentials")
	limit := fs.Int("limit", 0, "max entries")
	all := fs.Bool("all", false, "include hidden versions (admin)")
	code := fs.String("code", "", "claim code")
	token := fs.String("token", "", "token id")
	assertion := fs.String("assertion", os.Getenv("BENCHBOARD_ASSERTION"), "identity-provider assertion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	admin := withAssertion(ctx, *assertion)

	switch cmd {
	case "register":
		return cmdRegister(ctx, cli, w)

	case "submit":
		raw, err := readAll(*file)
		if err != nil {
			return err
		}
		return cmdSubmit(ctx, cli, raw, w)

	case "get":
		return call(ctx, cli, w, intakev1.MethodGetSubmission, map[string]any{"submission_id": *id})

	case "leaderboard":
		req := map[string]any{"verified_only": *verified}
		if *ver != "" {
			req["version"] = *ver
		}
		if *provider != "" {
			req["provider"] = *provider
		}
		if *limit != 0 {
			req["limit"] = *limit
		}
		return call(ctx, cli, w, intakev1.MethodLeaderboard, req)

	case "versions":
		if *all {
			return call(admin, cli, w, intakev1.MethodListAllVersions, nil)
		}
		return call(ctx, cli, w, intakev1.MethodListVersions, nil)

	case "claim":
		return call(admin, cli, w, intakev1.MethodRequestClaim, map[string]any{"claim_code": *code})

	case "confirm":
		return call(admin, cli, w, intakev1.MethodConfirmClaim, map[string]any{"token_id": *token})

	case "revert":
		return call(admin, cli, w, intakev1.MethodRevertClaim, map[string]any{"token_id": *token})

	case "set-current":
		return call(admin, cli, w, intakev1.MethodSetCurrentVersion, map[string]any{"version": *ver})

	case "hide", "unhide":
		return call(admin, cli, w, intakev1.MethodSetVersionHidden, map[string]any{"version": *ver, "hidden": cmd == "hide"})
	}
	return fmt.Errorf("unknown command %q: %w", cmd, flag.ErrHelp)
}

func call(ctx context.Context, cli *intakev1.Client, w io.Writer, method string, req map[string]any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}
	out, err := cli.Call(ctx, method, in)
	if err != nil {
		return err
	}
	printStruct(w, out)
	return nil
}

func cmdRegister(ctx context.Context, cli *intakev1.Client, w io.Writer) error {
	out, err := cli.Call(ctx, intakev1.MethodRegister, nil)
	if err != nil {
		return err
	}
	c := credentialFile{
		TokenID:        convert.String(out, "token_id"),
		Secret:         convert.String(out, "secret"),
		ClaimCode:      convert.String(out, "claim_code"),
		ClaimExpiresAt: convert.String(out, "claim_expires_at"),
	}
	if err := saveCredential(c); err != nil {
		return err
	}
	// the secret stays in the credential file
	printJSON(w, map[string]string{
		"token_id":         c.TokenID,
		"claim_code":       c.ClaimCode,
		"claim_expires_at": c.ClaimExpiresAt,
		"saved_to":         credentialPath(),
	})
	return nil
}

func cmdSubmit(ctx context.Context, cli *intakev1.Client, raw []byte, w io.Writer) error {
	c, err := loadCredential()
	if err != nil {
		return err
	}
	req, err := buildSubmission(raw, time.Now())
	if err != nil {
		return err
	}
	out, err := cli.Call(withBearer(ctx, c.Secret), intakev1.MethodSubmit, req)
	if err != nil {
		return err
	}
	printStruct(w, out)
	return nil
}

func fail(err error) {
	if st, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", st.Code(), st.Message())
		for _, v := range intakev1.Violations(err) {
			fmt.Fprintf(os.Stderr, "  - %s\n", v)
		}
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}
