// Command keva inspects and edits a keva environment directory.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/SharedCode/keva"
)

var cli struct {
	Dir string `short:"d" default:"." help:"Environment directory."`

	Stores struct{} `cmd:"" help:"List the stores in the environment."`
	Get    struct {
		Store string `arg:"" help:"Store name."`
		Key   string `arg:"" help:"Key to read."`
	} `cmd:"" help:"Read the value of a key."`
	Put struct {
		Store      string `arg:"" help:"Store name."`
		Key        string `arg:"" help:"Key to write."`
		Value      string `arg:"" help:"Value to write."`
		Duplicates bool   `help:"When creating the store, allow duplicate keys."`
		Prefixing  bool   `help:"When creating the store, use the random-lookup key layout."`
	} `cmd:"" help:"Write a key/value pair, creating the store if needed."`
	Del struct {
		Store string `arg:"" help:"Store name."`
		Key   string `arg:"" help:"Key to delete."`
	} `cmd:"" help:"Delete a key and all of its values."`
}

func main() {
	keva.ConfigureLogging()
	kctx := kong.Parse(&cli,
		kong.Name("keva"),
		kong.Description("Inspect and edit a keva environment."))
	if err := run(kctx); err != nil {
		fmt.Fprintln(os.Stderr, "keva:", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context) error {
	ctx := context.Background()
	env, err := keva.Open(cli.Dir, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	switch kctx.Command() {
	case "stores":
		for _, name := range env.Stores() {
			cfg, _ := env.StoreConfig(name)
			fmt.Printf("%s\t(%s)\n", name, cfg)
		}
		return nil

	case "get <store> <key>":
		cfg, ok := env.StoreConfig(cli.Get.Store)
		if !ok {
			return fmt.Errorf("store %q does not exist", cli.Get.Store)
		}
		v, err := keva.ComputeReadOnly(ctx, env, func(txn *keva.Transaction) ([]byte, error) {
			st, err := env.OpenStore(txn, cli.Get.Store, cfg)
			if err != nil {
				return nil, err
			}
			return st.Get(txn, []byte(cli.Get.Key))
		})
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("key %q not found in store %q", cli.Get.Key, cli.Get.Store)
		}
		fmt.Println(string(v))
		return nil

	case "put <store> <key> <value>":
		cfg, ok := env.StoreConfig(cli.Put.Store)
		if !ok {
			cfg = keva.StoreConfig{AllowDuplicates: cli.Put.Duplicates}
			if cli.Put.Prefixing {
				cfg.KeyAccess = keva.RandomAccess
			}
		}
		return env.RunReadWrite(ctx, func(txn *keva.Transaction) error {
			st, err := env.OpenStore(txn, cli.Put.Store, cfg)
			if err != nil {
				return err
			}
			return st.Put(txn, []byte(cli.Put.Key), []byte(cli.Put.Value))
		})

	case "del <store> <key>":
		cfg, ok := env.StoreConfig(cli.Del.Store)
		if !ok {
			return fmt.Errorf("store %q does not exist", cli.Del.Store)
		}
		return env.RunReadWrite(ctx, func(txn *keva.Transaction) error {
			st, err := env.OpenStore(txn, cli.Del.Store, cfg)
			if err != nil {
				return err
			}
			return st.Delete(txn, []byte(cli.Del.Key))
		})
	}
	return fmt.Errorf("unknown command %q", kctx.Command())
}
