package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/tybliddell/3505-spreadsheet/client"
	"github.com/tybliddell/3505-spreadsheet/config"
	"github.com/tybliddell/3505-spreadsheet/feed"
	"github.com/tybliddell/3505-spreadsheet/server"
	"github.com/tybliddell/3505-spreadsheet/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	sub := os.Args[1]
	switch sub {
	case "-h", "--help", "help":
		usage()
		return
	case "serve":
		os.Exit(serveCommand(os.Args[2:]))
	case "client":
		os.Exit(clientCommand(os.Args[2:]))
	case "dump":
		os.Exit(dumpCommand(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  spreadsheet <command> [arguments]\n")
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  serve [config.hjson]     start the collaborative spreadsheet server (default :1100)\n")
	fmt.Fprintf(os.Stderr, "  client [addr]            connect an interactive client (default localhost:1100)\n")
	fmt.Fprintf(os.Stderr, "  dump <file.sht>          print the cells of a saved sheet file\n")
	fmt.Fprintf(os.Stderr, "  help                     show this help message\n")
}

func serveCommand(args []string) int {
	cfg := config.Default()
	if len(args) > 1 {
		fmt.Fprintf(os.Stderr, "usage: serve [config.hjson]\n")
		return 2
	}
	if len(args) == 1 {
		loaded, err := config.Load(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		cfg = loaded
	}

	var st store.Store
	if cfg.Postgres != "" {
		pg, err := store.OpenPG(cfg.Postgres)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer pg.Close()
		st = pg
	} else {
		st = store.NewFileStore(cfg.Dir)
	}

	var pub *feed.Publisher
	if cfg.Feed != "" {
		p, err := feed.Bind(cfg.Feed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		pub = p
	}

	if err := server.New(cfg, st, pub).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

func clientCommand(args []string) int {
	addr := "localhost:1100"
	if len(args) > 1 {
		fmt.Fprintf(os.Stderr, "usage: client [addr]\n")
		return 2
	}
	if len(args) == 1 {
		addr = args[0]
	}
	if err := client.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

func dumpCommand(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: dump <file.sht>\n")
		return 2
	}
	name, cells, err := store.ReadSheetFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	fmt.Printf("sheet: %s\n", name)
	cellNames := make([]string, 0, len(cells))
	for cell := range cells {
		cellNames = append(cellNames, cell)
	}
	sort.Strings(cellNames)
	for _, cell := range cellNames {
		fmt.Printf("%s = %q\n", cell, cells[cell])
	}
	return 0
}
