package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"rzr-relay/go-backend/internal/nodekey"
	"rzr-relay/go-backend/internal/securestore"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const passphraseEnv = "RZR_KEY_PASSPHRASE"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: relay-keytool <init|show|recover> -key <path>")
	fmt.Fprintln(w, "  init     generate a key, print its mnemonic and seal it")
	fmt.Fprintln(w, "  show     print the address stored in a key file")
	fmt.Fprintln(w, "  recover  read a mnemonic from stdin and seal the derived key")
	fmt.Fprintf(w, "the passphrase is read from %s\n", passphraseEnv)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyPath := fs.String("key", "node.key", "Path of the sealed key file")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	var err error
	switch cmd {
	case "init":
		err = initKey(*keyPath, stdout)
	case "show":
		err = showKey(*keyPath, stdout)
	case "recover":
		err = recoverKey(*keyPath, stdin, stdout)
	default:
		usage(stderr)
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "relay-keytool %s: %v\n", cmd, err)
		if errors.Is(err, nodekey.ErrPassphraseRequired) || errors.Is(err, securestore.ErrExists) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

func passphrase() string {
	return strings.TrimSpace(os.Getenv(passphraseEnv))
}

func initKey(path string, out io.Writer) error {
	mnemonic, key, err := nodekey.Generate()
	if err != nil {
		return err
	}
	defer key.Zero()
	if err := nodekey.Save(path, passphrase(), key); err != nil {
		return err
	}
	fmt.Fprintf(out, "address: %s\n", key.Address().Hex())
	fmt.Fprintf(out, "mnemonic: %s\n", mnemonic)
	fmt.Fprintln(out, "write the mnemonic down; it is the only way to recover the key")
	return nil
}

func showKey(path string, out io.Writer) error {
	addr, err := nodekey.StoredAddress(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr.Hex())
	return nil
}

func recoverKey(path string, in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	key, err := nodekey.FromMnemonic(line)
	if err != nil {
		return err
	}
	defer key.Zero()
	if err := nodekey.Save(path, passphrase(), key); err != nil {
		return err
	}
	fmt.Fprintf(out, "address: %s\n", key.Address().Hex())
	return nil
}
