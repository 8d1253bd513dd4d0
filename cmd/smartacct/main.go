package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/cidutil"
	"github.com/Permutize/smart-accounts/keys"
	"github.com/Permutize/smart-accounts/model"
	"github.com/Permutize/smart-accounts/rpc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "digest":
		return cmdDigest(args[1:], out, errOut)
	case "sign":
		return cmdSign(args[1:], out, errOut)
	case "submit":
		return cmdSubmit(args[1:], out, errOut, false)
	case "simulate":
		return cmdSubmit(args[1:], out, errOut, true)
	case "nonce":
		return cmdNonce(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "smartacct: smart-account batch signing and submission CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  smartacct key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  smartacct key list")
	fmt.Fprintln(w, "  smartacct key export --name <name>")
	fmt.Fprintln(w, "  smartacct digest <batch.json>")
	fmt.Fprintln(w, "  smartacct sign --signer <name> --chain-id <id> [--domain-name <n>] [--domain-version <v>] [--out <file>] <batch.json>")
	fmt.Fprintln(w, "  smartacct submit --target <host:port> <envelope file>")
	fmt.Fprintln(w, "  smartacct simulate --target <host:port> <envelope file>")
	fmt.Fprintln(w, "  smartacct nonce --target <host:port> --principal <0xaddr>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - --seed-hex must be 32 bytes (64 hex chars) ed25519 seed")
	fmt.Fprintln(w, "  - keys are stored under ~/.smartacct/keys (0600 seed files)")
	fmt.Fprintln(w, "  - batch.json: {\"nonce\":N,\"deadline\":unixSeconds,\"operations\":[{\"target\":\"0x..\",\"value\":\"..\",\"payload\":\"0x..\"}]}")
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "key: expected init, list, or export")
		return 2
	}
	switch args[0] {
	case "init":
		fs := flag.NewFlagSet("key init", flag.ContinueOnError)
		name := fs.String("name", "", "signer name")
		seedHex := fs.String("seed-hex", "", "ed25519 seed (64 hex chars); random when empty")
		force := fs.Bool("force", false, "overwrite an existing signer")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		var seed []byte
		if *seedHex == "" {
			seed = make([]byte, ed25519.SeedSize)
			if _, err := rand.Read(seed); err != nil {
				fmt.Fprintln(errOut, err)
				return 1
			}
		} else {
			var err error
			seed, err = keys.ParseSeedHex(*seedHex)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return 2
			}
		}
		ks, err := keys.OpenKeyStore("")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if err := ks.Save(*name, seed, *force); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		priv := ed25519.NewKeyFromSeed(seed)
		fmt.Fprintf(out, "%s\t%s\n", *name, keys.AddressFromEd25519(priv.Public().(ed25519.PublicKey)))
		return 0

	case "list":
		ks, err := keys.OpenKeyStore("")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		names, err := ks.List()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		for _, name := range names {
			priv, err := ks.Load(name)
			if err != nil {
				fmt.Fprintf(errOut, "%s: %v\n", name, err)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", name, keys.AddressFromEd25519(priv.Public().(ed25519.PublicKey)))
		}
		return 0

	case "export":
		fs := flag.NewFlagSet("key export", flag.ContinueOnError)
		name := fs.String("name", "", "signer name")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		ks, err := keys.OpenKeyStore("")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		priv, err := ks.Load(*name)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintln(out, keys.AddressFromEd25519(priv.Public().(ed25519.PublicKey)))
		return 0

	default:
		fmt.Fprintf(errOut, "key: unknown subcommand %s\n", args[0])
		return 2
	}
}

func loadBatch(path string) (batch.Batch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return batch.Batch{}, err
	}
	var doc model.Batch
	if err := json.Unmarshal(raw, &doc); err != nil {
		return batch.Batch{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Compile()
}

func cmdDigest(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "digest: expected exactly one batch file")
		return 2
	}
	b, err := loadBatch(args[0])
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	d := batch.BatchDigest(b)
	fmt.Fprintf(out, "%s\t%s\n", d, cidutil.DigestCID(d))
	return 0
}

func cmdSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	signer := fs.String("signer", "", "stored signer name")
	seedHex := fs.String("seed-hex", "", "ed25519 seed (alternative to --signer)")
	domainName := fs.String("domain-name", "smart-accounts", "domain name")
	domainVersion := fs.String("domain-version", "1", "domain version")
	chainID := fs.Uint64("chain-id", 0, "network identifier")
	outPath := fs.String("out", "", "envelope output file (stdout hex when empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "sign: expected exactly one batch file")
		return 2
	}
	if *chainID == 0 {
		fmt.Fprintln(errOut, "sign: --chain-id is required")
		return 2
	}

	var priv ed25519.PrivateKey
	switch {
	case *signer != "":
		ks, err := keys.OpenKeyStore("")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		priv, err = ks.Load(*signer)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	case *seedHex != "":
		seed, err := keys.ParseSeedHex(*seedHex)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		priv = ed25519.NewKeyFromSeed(seed)
	default:
		fmt.Fprintln(errOut, "sign: --signer or --seed-hex is required")
		return 2
	}

	b, err := loadBatch(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	// The signer's identity is the account: one controlling key per account.
	account := keys.AddressFromEd25519(priv.Public().(ed25519.PublicKey))
	domain := batch.Domain{
		Name:    *domainName,
		Version: *domainVersion,
		ChainID: *chainID,
		Account: account,
	}
	signing := domain.SigningDigest(batch.BatchDigest(b))
	envelope := batch.EncodeEnvelope(batch.Envelope{
		Batch:     b,
		Signature: keys.SignEd25519(priv, signing),
	})

	if *outPath == "" {
		fmt.Fprintln(out, hex.EncodeToString(envelope))
		return 0
	}
	if err := os.WriteFile(*outPath, envelope, 0o644); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "wrote %s (%d bytes, account %s)\n", *outPath, len(envelope), account)
	return 0
}

func dialTarget(target string) (*rpc.Client, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("--target is required")
	}
	c, err := rpc.Dial(target, rpc.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	c.Timeout = 10 * time.Second
	return c, nil
}

func cmdSubmit(args []string, out io.Writer, errOut io.Writer, simulate bool) int {
	name := "submit"
	if simulate {
		name = "simulate"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	target := fs.String("target", "", "daemon address host:port")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(errOut, "%s: expected exactly one envelope file\n", name)
		return 2
	}
	envelope, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	client, err := dialTarget(*target)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer client.Close()

	var res rpc.Result
	if simulate {
		res, err = client.Simulate(envelope)
	} else {
		res, err = client.Submit(envelope)
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "principal=%s nonce=%d digest=%s simulated=%v\n", res.Principal, res.Nonce, res.Digest, res.Simulated)
	return 0
}

func cmdNonce(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("nonce", flag.ContinueOnError)
	target := fs.String("target", "", "daemon address host:port")
	principal := fs.String("principal", "", "0x-prefixed principal address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	addr, err := batch.HexToAddress(*principal)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	client, err := dialTarget(*target)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer client.Close()

	n, err := client.Nonce(addr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, n)
	return 0
}
