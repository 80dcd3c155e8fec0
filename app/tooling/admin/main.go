// This program performs administrative tasks against the persisted state of
// a crossledger node.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/crossledger/app/tooling/admin/commands"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database/storage"
	"github.com/ardanlabs/crossledger/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		if !errors.Is(err, commands.ErrHelp) {
			log.Errorw("startup", "ERROR", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args  conf.Args
		State struct {
			DBPath  string `conf:"default:zblock/blocks.db"`
			Storage string `conf:"default:leveldb"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "crossledger admin",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	var store database.Storage
	switch cfg.State.Storage {
	case "leveldb":
		store, err = storage.NewLevelDB(cfg.State.DBPath)
	case "disk":
		store, err = storage.NewDisk(cfg.State.DBPath)
	default:
		err = fmt.Errorf("storage %q is not supported", cfg.State.Storage)
	}
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	log.Infow("startup", "status", "storage opened", "path", cfg.State.DBPath, "storage", cfg.State.Storage)

	return processCommands(cfg.Args, store)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, store database.Storage) error {
	switch args.Num(0) {
	case "fee":
		if err := commands.Fee(os.Stdout, store); err != nil {
			return fmt.Errorf("getting fee state: %w", err)
		}

	case "accounts":
		if err := commands.Accounts(os.Stdout, store, args.Num(1)); err != nil {
			return fmt.Errorf("getting accounts: %w", err)
		}

	case "blocks":
		if err := commands.Blocks(os.Stdout, store); err != nil {
			return fmt.Errorf("getting blocks: %w", err)
		}

	default:
		fmt.Println("fee:      print the persisted fee controller state")
		fmt.Println("accounts: print the persisted accounts, optionally only one")
		fmt.Println("blocks:   print every block and its extrinsics")
		fmt.Println("provide a command to get more help.")
		return commands.ErrHelp
	}

	return nil
}
