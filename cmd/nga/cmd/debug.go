package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gyokusei/nga-cli/internal/forum"
	"github.com/gyokusei/nga-cli/internal/render"
	"github.com/gyokusei/nga-cli/internal/store"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Show the last exchange with the forum",
	Long: `Show the last request sent to the forum or the response it returned.
The exchange is kept between runs, so a failed start can be inspected
afterwards.`,
}

var lastRequestCmd = &cobra.Command{
	Use:   "last-request",
	Short: "Print the last request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showExchange(cmd.OutOrStdout(), render.ExchangeRequest)
	},
}

var lastResponseCmd = &cobra.Command{
	Use:   "last-response",
	Short: "Print the last response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showExchange(cmd.OutOrStdout(), render.ExchangeResponse)
	},
}

func showExchange(w io.Writer, format func(forum.Exchange) string) error {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return writeExchange(w, st, format)
}

func writeExchange(w io.Writer, st *store.Store, format func(forum.Exchange) string) error {
	ex, at, err := st.LastExchange()
	if err != nil {
		return err
	}
	if ex.Empty() {
		_, err := fmt.Fprintln(w, "nothing recorded yet, run 'nga start' first")
		return err
	}
	_, err = fmt.Fprintf(w, "recorded %s\n%s", at.Local().Format("2006-01-02 15:04:05"), format(ex))
	return err
}

func init() {
	debugCmd.AddCommand(lastRequestCmd)
	debugCmd.AddCommand(lastResponseCmd)
	rootCmd.AddCommand(debugCmd)
}
