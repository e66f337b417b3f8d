// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// shopbrain is the command line client for the assistant service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiToken  string
)

func getServerBaseURL() string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("SHOPBRAIN_SERVER_URL"); env != "" {
		return env
	}
	return "http://localhost:12310"
}

func getAPIToken() string {
	if apiToken != "" {
		return apiToken
	}
	return os.Getenv("SHOPBRAIN_API_TOKEN")
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "shopbrain",
		Short: "CK Auto AI diagnostic assistant CLI",
		Long:  "Command line client for the CK Auto AI diagnostic assistant service.",
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Assistant server base URL (default http://localhost:12310)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "API bearer token (or SHOPBRAIN_API_TOKEN)")

	rootCmd.AddCommand(newAskCommand())
	rootCmd.AddCommand(newResumeCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newDeleteCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
