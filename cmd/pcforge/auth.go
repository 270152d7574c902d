package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/pcforge/storefront/internal/reconcile"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var phone, code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a one-time code sent to your phone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if code == "" {
				if err := a.api.RequestOTP(ctx, phone); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "code sent to %s, enter it: ", phone)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read code: %w", err)
				}
				code = strings.TrimSpace(line)
			}

			s, err := a.api.VerifyOTP(ctx, phone, code)
			if err != nil {
				return err
			}
			a.session = &session{Token: s.Token, Phone: phone, ExpiresAt: s.ExpiresAt}
			if err := saveSession(a.home, a.session); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			a.api = a.api.WithToken(s.Token)
			fmt.Fprintf(a.out, "logged in as %s\n", phone)

			// first sight of the session: move the guest cart over
			v := reconcile.NewService(a.local, a.api, a.log).Fetch(ctx)
			printCart(a.out, v, false)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "10-digit mobile number")
	cmd.Flags().StringVar(&code, "code", "", "code already received, skips sending a new one")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := clearSession(a.home); err != nil {
				return err
			}
			a.session = nil
			fmt.Fprintln(a.out, "logged out")
			return nil
		},
	}
}
