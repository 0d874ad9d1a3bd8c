// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/memoryd/core/access"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or manage access tokens",
}

var tokenIssuePersona string

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an access token for a persona",
	Long: `Issue prints a fresh access token for a persona from a standalone
access manager. The manager is not shared with a running memoryd process:
this is a convenience for local testing and scripting, not a way to mint
tokens a running server will recognize.`,
	RunE: runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenIssuePersona, "persona", "", "Persona to issue a token for (required)")
	tokenIssueCmd.MarkFlagRequired("persona")
	tokenCmd.AddCommand(tokenIssueCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	am := access.NewManager()
	tok, err := am.Authenticate(context.Background(), tokenIssuePersona)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(tok)
	return nil
}
