// Command vivoorctl logs a wallet in and submits payments and tips for verification.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/term"

	"github.com/vivoor/vivoor-api/internal/client"
	"github.com/vivoor/vivoor-api/internal/models"
)

const usage = `usage: vivoorctl [-server URL] [-session FILE] <command> [flags]

commands:
  login   -address ADDR [-key-file FILE]
  whoami
  logout
  pay     -type TYPE -txid TXID [-start MS] [-attempts N] [-interval DUR]
  tip     -stream ID -to ADDR -txid TXID [-amount SOMPI] [-name NAME] [-message TEXT]
`

type app struct {
	server string
	store  *client.SessionStore
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	defaultPath, err := client.DefaultSessionPath()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("vivoorctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }
	server := fs.String("server", envOr("VIVOOR_SERVER", "http://localhost:8080"), "API base URL")
	sessionPath := fs.String("session", defaultPath, "session file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	a := &app{server: *server, store: client.NewSessionStore(*sessionPath), out: out}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "whoami":
		return a.whoami(ctx)
	case "logout":
		return a.logout(ctx)
	case "pay":
		return a.pay(ctx, rest)
	case "tip":
		return a.tip(ctx, rest)
	}
	fs.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	address := fs.String("address", "", "wallet address")
	keyFile := fs.String("key-file", "", "file holding the hex private key (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *address == "" {
		return errors.New("-address is required")
	}

	priv, err := readPrivateKey(*keyFile)
	if err != nil {
		return err
	}

	c := client.New(a.server)
	resp, err := c.Authenticate(ctx, priv, *address)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := a.store.Save(&client.StoredSession{
		ServerURL:       a.server,
		Token:           resp.SessionToken,
		WalletAddress:   *address,
		EncryptedUserID: resp.EncryptedUserID,
		ExpiresAt:       resp.ExpiresAt,
	}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s until %s\n", *address, resp.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	c, _, err := a.session()
	if err != nil {
		return err
	}
	info, err := c.Session(ctx)
	if err != nil {
		return a.forgetIfRejected(err)
	}
	fmt.Fprintf(a.out, "%s (session expires %s)\n", info.WalletAddress, info.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (a *app) logout(ctx context.Context) error {
	c, _, err := a.session()
	if errors.Is(err, client.ErrNoSession) {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.Logout(ctx); err != nil {
		if !sessionRejected(err) {
			return fmt.Errorf("logout: %w", err)
		}
	}
	if err := a.store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *app) pay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	paymentType := fs.String("type", string(models.PaymentStreamStart), "stream_start, monthly_verification or yearly_verification")
	txid := fs.String("txid", "", "transaction id")
	start := fs.Int64("start", 0, "unix ms the payment was made (defaults to now)")
	attempts := fs.Int("attempts", 3, "verification attempts")
	interval := fs.Duration("interval", 10*time.Second, "wait between attempts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *txid == "" {
		return errors.New("-txid is required")
	}
	if *start == 0 {
		*start = time.Now().UnixMilli()
	}

	c, sess, err := a.session()
	if err != nil {
		return err
	}
	req := models.PaymentVerifyRequest{
		UserAddress: sess.WalletAddress,
		PaymentType: models.PaymentType(*paymentType),
		TxID:        strings.ToLower(*txid),
		StartTime:   *start,
	}

	resp, reason, err := client.PollVerification(ctx, func(ctx context.Context) (*models.PaymentVerifyResponse, error) {
		return c.VerifyPayment(ctx, req)
	}, *attempts, *interval)
	if reason != client.StopFound {
		return a.reportStop(reason, err)
	}
	v := resp.Verification
	fmt.Fprintf(a.out, "verified %s: %s KAS\n", v.PaymentType, v.AmountKAS)
	if v.ExpiresAt != nil {
		fmt.Fprintf(a.out, "valid until %s\n", v.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func (a *app) tip(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tip", flag.ContinueOnError)
	stream := fs.String("stream", "", "stream id")
	to := fs.String("to", "", "streamer address")
	txid := fs.String("txid", "", "transaction id")
	amount := fs.Uint64("amount", 0, "tip amount in sompi")
	name := fs.String("name", "", "display name")
	msg := fs.String("message", "", "tip message")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stream == "" || *to == "" || *txid == "" {
		return errors.New("-stream, -to and -txid are required")
	}

	c, sess, err := a.session()
	if err != nil {
		return err
	}
	req := models.TipVerifyRequest{
		TxID:                strings.ToLower(*txid),
		StreamID:            *stream,
		RecipientAddress:    *to,
		AmountSompi:         *amount,
		SenderWalletAddress: sess.WalletAddress,
		SenderName:          *name,
		TipMessage:          *msg,
	}

	resp, reason, err := client.PollVerification(ctx, func(ctx context.Context) (*models.TipVerifyResponse, error) {
		return c.VerifyTip(ctx, req)
	}, 3, 10*time.Second)
	if reason != client.StopFound {
		return a.reportStop(reason, err)
	}
	fmt.Fprintf(a.out, "tip verified: %s KAS to %s\n", resp.AmountKAS, resp.Tip.RecipientAddress)
	return nil
}

// session loads the saved session and returns a client carrying its token.
func (a *app) session() (*client.Client, *client.StoredSession, error) {
	sess, err := a.store.Load()
	if errors.Is(err, client.ErrNoSession) {
		return nil, nil, fmt.Errorf("%w: run vivoorctl login first", err)
	}
	if err != nil {
		return nil, nil, err
	}
	if sess.Expired(time.Now()) {
		_ = a.store.Clear()
		return nil, nil, errors.New("session expired: run vivoorctl login again")
	}
	server := sess.ServerURL
	if server == "" {
		server = a.server
	}
	return client.New(server, client.WithToken(sess.Token)), sess, nil
}

func (a *app) reportStop(reason client.StopReason, err error) error {
	if reason == client.StopCancelled {
		return errors.New("cancelled")
	}
	if sessionRejected(err) {
		return a.forgetIfRejected(err)
	}
	return fmt.Errorf("verification %s: %w", reason, err)
}

// forgetIfRejected clears the stored session when the server no longer accepts it.
func (a *app) forgetIfRejected(err error) error {
	if sessionRejected(err) {
		_ = a.store.Clear()
		return errors.New("session rejected by server: run vivoorctl login again")
	}
	return err
}

func sessionRejected(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

func readPrivateKey(path string) (*btcec.PrivateKey, error) {
	var raw string
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		raw = string(data)
	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Fprint(os.Stderr, "private key (hex): ")
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		raw = string(data)
	default:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read key: %w", err)
		}
		raw = line
	}
	return parsePrivateKey(raw)
}

func parsePrivateKey(raw string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil || len(b) != 32 {
		return nil, errors.New("private key must be 32 bytes of hex")
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
