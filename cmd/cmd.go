// Package cmd implements the resourceiq command line interface.
//
// Commands:
//   - serve: HTTP API server (the default when no command is given)
//   - migrate: apply pending database migrations and exit
//   - init-db: apply migrations and seed the first superuser
//   - version: print build information
//
// The server shuts down gracefully on SIGINT/SIGTERM via context
// cancellation.
package cmd

import (
	"fmt"
	"os"
)

// Execute is the main entry point for the resourceiq CLI.
func Execute() error {
	if len(os.Args) < 2 {
		// A bare invocation starts the server; that is what containers
		// and process supervisors expect.
		return runServe()
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "init-db":
		return runInitDB()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s (run \"resourceiq help\")", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("ResourceIQ - engineering resource intelligence API")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  resourceiq serve [addr]  Start the HTTP API server (default: 127.0.0.1:8000)")
	fmt.Println("  resourceiq migrate       Apply pending database migrations and exit")
	fmt.Println("  resourceiq init-db       Apply migrations and seed the first superuser")
	fmt.Println("  resourceiq version       Show version information")
	fmt.Println("  resourceiq help          Show this help")
	fmt.Println()
	fmt.Println("Running the bare binary is equivalent to \"resourceiq serve\".")
	fmt.Println()
	fmt.Println("Configuration comes from config.yaml and environment variables.")
	fmt.Println("The essentials:")
	fmt.Println("  SECRET_KEY             JWT signing key, at least 32 bytes (serve)")
	fmt.Println("  POSTGRES_PASSWORD      Database password (all commands)")
	fmt.Println("  DATABASE_URL           Overrides the individual postgres_* settings")
	fmt.Println("  FIRST_SUPERUSER        Initial admin email, with FIRST_SUPERUSER_PASSWORD (init-db)")
	fmt.Println("  GITHUB_APP_ID          GitHub App integration, with GITHUB_PRIVATE_KEY")
	fmt.Println("  ATLASSIAN_CLIENT_ID    Jira OAuth, with ATLASSIAN_CLIENT_SECRET and ATLASSIAN_REDIRECT_URI")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/resourceiq/resourceiq")
}
