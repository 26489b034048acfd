package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/coin"
	"github.com/xraph/coinledger/event"
	kafkahook "github.com/xraph/coinledger/kafka_hook"
	"github.com/xraph/coinledger/service"
	"github.com/xraph/coinledger/types"
)

type amountFunc func(*service.Service, context.Context, service.AmountRequest) (*coinledger.Movement, error)

func (a *app) initiator() string { return a.v.GetString("initiator") }

func (a *app) coinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coin",
		Short: "Create, inspect and remove coins",
	}

	create := &cobra.Command{
		Use:   "create <coin-id>",
		Short: "Create a coin with zero supply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			decimals, _ := cmd.Flags().GetInt("decimals")
			c, err := a.svc.Create(cmd.Context(), service.CreateRequest{
				CoinID:       args[0],
				Decimals:     decimals,
				OwnerUID:     owner,
				InitiatorUID: a.initiator(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
	create.Flags().String("owner", "", "owner uid")
	create.Flags().Int("decimals", 2, "display precision")
	_ = create.MarkFlagRequired("owner")

	get := &cobra.Command{
		Use:   "get <coin-uid>",
		Short: "Show a coin and its aggregate balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}

	remove := &cobra.Command{
		Use:   "remove <coin-uid>",
		Short: "Remove a coin and every account of it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.svc.Remove(cmd.Context(), service.RemoveRequest{
				CoinUID:      args[0],
				InitiatorUID: a.initiator(),
			})
		},
	}

	accounts := &cobra.Command{
		Use:   "accounts <coin-uid>",
		Short: "List the accounts of a coin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.svc.AccountList(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}

	cmd.AddCommand(create, get, remove, accounts)
	return cmd
}

func (a *app) principalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principal",
		Short: "Manage principals that may hold coins",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <uid>",
		Short: "Register a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.svc.RegisterPrincipal(cmd.Context(), args[0])
		},
	})
	return cmd
}

// amountCmd builds a "<name> <coin-uid> <object-uid> <amount>" command. When
// heldFlag is set, the flag of that name switches to the held variant.
func (a *app) amountCmd(name, short, heldFlag string, fn, heldFn amountFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <coin-uid> <object-uid> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := types.ParseAmount(args[2])
			if err != nil {
				return err
			}

			call := fn
			if heldFlag != "" {
				if held, _ := cmd.Flags().GetBool(heldFlag); held {
					call = heldFn
				}
			}

			m, err := call(a.svc, cmd.Context(), service.AmountRequest{
				CoinUID:      args[0],
				ObjectUID:    args[1],
				Amount:       amount,
				InitiatorUID: a.initiator(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
	if heldFlag != "" {
		cmd.Flags().Bool(heldFlag, false, "operate on the held balance")
	}
	return cmd
}

func (a *app) nullifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nullify <coin-uid> <object-uid>",
		Short: "Clear a holder's available (or held) balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.NullifyRequest{
				CoinUID:      args[0],
				ObjectUID:    args[1],
				InitiatorUID: a.initiator(),
			}
			call := a.svc.Nullify
			if held, _ := cmd.Flags().GetBool("held"); held {
				call = a.svc.NullifyHeld
			}
			m, err := call(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
	cmd.Flags().Bool("held", false, "clear the held balance")
	return cmd
}

var transferModes = map[string]coin.TransferKind{
	"transfer":     coin.Transfer,
	"to-held":      coin.TransferToHeld,
	"from-held":    coin.TransferFromHeld,
	"from-to-held": coin.TransferFromToHeld,
}

func (a *app) transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer <coin-uid> <from-uid> <to-uid> <amount>",
		Short: "Move balance between holders",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, _ := cmd.Flags().GetString("mode")
			kind, ok := transferModes[mode]
			if !ok {
				return fmt.Errorf("unknown transfer mode %q", mode)
			}
			amount, err := types.ParseAmount(args[3])
			if err != nil {
				return err
			}

			res, err := a.svc.TransferKind(cmd.Context(), kind, service.TransferRequest{
				CoinUID:      args[0],
				ObjectUID:    args[1],
				TargetUID:    args[2],
				Amount:       amount,
				InitiatorUID: a.initiator(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("mode", "transfer", "transfer, to-held, from-held or from-to-held")
	return cmd
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <coin-uid> <object-uid>",
		Short: "Show a holder's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.svc.BalanceGet(cmd.Context(), service.BalanceRequest{
				CoinUID:   args[0],
				ObjectUID: args[1],
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, b)
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <coin-uid>...",
		Short: "Check that each coin's aggregate equals the sum of its accounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs coinledger.MultiError
			for _, uid := range args {
				if err := a.svc.Verify(cmd.Context(), uid); err != nil {
					errs.Add(fmt.Errorf("%s: %w", uid, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", uid)
			}
			if errs.HasErrors() {
				for _, err := range errs.Errors {
					cmd.PrintErrln(err)
				}
				return errs
			}
			return nil
		},
	}
}

// eventsCmd follows the Kafka topic and prints each event as a JSON line.
// It reads configuration only and never opens the store.
func (a *app) eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print ledger events published to Kafka",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.configure()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers := a.v.GetStringSlice("kafka.brokers")
			if len(brokers) == 0 {
				return errors.New("events: --kafka-brokers is required")
			}
			group, _ := cmd.Flags().GetString("group")

			r := kafkahook.NewReader(brokers, a.v.GetString("kafka.topic"), group)
			a.closers = append(a.closers, r.Close)

			enc := json.NewEncoder(cmd.OutOrStdout())
			return kafkahook.Consume(cmd.Context(), r, func(_ context.Context, e *event.Event) error {
				return enc.Encode(e)
			}, a.logger())
		},
	}
	cmd.Flags().String("group", "coinctl", "Kafka consumer group")
	return cmd
}
