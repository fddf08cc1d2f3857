package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"swing-trigger/utils"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "5000", "Port to use")
		if err := serveCmd.Parse(os.Args[2:]); err != nil {
			logger := utils.GetLogger()
			err := xerrors.New(err)
			logger.ErrorContext(context.Background(), "failed to parse serve flags", slog.Any("error", err))
			os.Exit(1)
		}
		serve(*protocol, *port)
	default:
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
}
