package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/classboard/core/cmd/classboard/commands"
)

// @title Classboard Gateway API
// @version 1.0
// @description Tables and realtime change feed behind the classboard sync core

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rootCmd := &cobra.Command{
		Use:          "classboard",
		Short:        "Collaborative classroom board",
		Long:         `Classboard runs the realtime gateway for collaborative sticky-note boards and offers client commands that sync with it.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewTokenCommand())
	rootCmd.AddCommand(commands.NewBoardCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
