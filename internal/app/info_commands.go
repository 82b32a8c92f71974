package app

import (
	"github.com/spf13/cobra"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/history"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/out"
	"github.com/ggonzalez94/swap-engine/internal/policy"
	"github.com/ggonzalez94/swap-engine/internal/venue"
)

type venueInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`
}

func (s *runtimeState) newVenuesCommand() *cobra.Command {
	root := &cobra.Command{Use: "venues", Short: "Venue commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List supported swap venues",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]venueInfo, 0, len(venue.All()))
			for _, v := range venue.All() {
				infos = append(infos, venueInfo{
					Name:        v.Name,
					DisplayName: v.DisplayName,
					Enabled:     policy.CheckVenueAllowed(s.settings.EnableVenues, v.Name) == nil,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), infos, nil, out.EnvelopeMeta{})
		},
	}
	root.AddCommand(list)
	return root
}

type chainInfo struct {
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	CAIP2         string `json:"caip2"`
	ChainID       int64  `json:"chain_id"`
	NativeSymbol  string `json:"native_symbol"`
	WrappedNative string `json:"wrapped_native"`
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Chain commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List supported chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			chains := id.SupportedChains()
			infos := make([]chainInfo, 0, len(chains))
			for _, c := range chains {
				infos = append(infos, chainInfo{
					Slug:          c.Slug,
					Name:          c.Name,
					CAIP2:         c.CAIP2,
					ChainID:       c.EVMChainID,
					NativeSymbol:  c.NativeSymbol,
					WrappedNative: c.WrappedNative,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), infos, nil, out.EnvelopeMeta{})
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	root := &cobra.Command{Use: "history", Short: "Trade history"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded trades, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(s.settings.HistoryStorePath, s.settings.HistoryLockPath)
			if err != nil {
				return engerr.Wrap(engerr.CodeInternal, "open trade history", err)
			}
			defer func() { _ = store.Close() }()
			trades, err := store.List(limit)
			if err != nil {
				return engerr.Wrap(engerr.CodeInternal, "list trades", err)
			}
			if trades == nil {
				trades = []history.Trade{}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), trades, nil, out.EnvelopeMeta{})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Number of trades to return")
	root.AddCommand(list)

	var chainArg string
	var txHash string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show one trade by chain and transaction hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := id.ParseChain(chainArg)
			if err != nil {
				return err
			}
			store, err := history.Open(s.settings.HistoryStorePath, s.settings.HistoryLockPath)
			if err != nil {
				return engerr.Wrap(engerr.CodeInternal, "open trade history", err)
			}
			defer func() { _ = store.Close() }()
			trade, err := store.Get(chain.EVMChainID, txHash)
			if err != nil {
				return engerr.Wrap(engerr.CodeUsage, "look up trade", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), trade, nil, out.EnvelopeMeta{})
		},
	}
	show.Flags().StringVar(&chainArg, "chain", "", "Chain id/slug/CAIP-2")
	show.Flags().StringVar(&txHash, "tx", "", "Transaction hash")
	_ = show.MarkFlagRequired("chain")
	_ = show.MarkFlagRequired("tx")
	root.AddCommand(show)

	return root
}
