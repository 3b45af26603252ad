package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/uavlink/datarecording"
	"github.com/sarchlab/uavlink/flightlog"
	"github.com/sarchlab/uavlink/tracing"
)

var logCmd = &cobra.Command{
	Use:   "log RECORDING",
	Short: "Print a recorded flight log.",
	Long: "`log RECORDING` prints the flight log stored in RECORDING.sqlite3. " +
		"With --link it prints the link history instead.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := strings.TrimSuffix(args[0], ".sqlite3")

		if _, err := os.Stat(path + ".sqlite3"); err != nil {
			return err
		}

		reader, err := datarecording.NewReader(path)
		if err != nil {
			return err
		}
		defer reader.Close()

		object, _ := cmd.Flags().GetString("object")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		link, _ := cmd.Flags().GetBool("link")

		if link {
			return printLinkHistory(cmd.Context(), reader, limit, offset)
		}

		return printFlightLog(cmd.Context(), reader, flightlog.Filter{
			Name:   object,
			Limit:  limit,
			Offset: offset,
		})
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().String("object", "", "only print records of this object")
	logCmd.Flags().Int("limit", 0, "print at most this many records")
	logCmd.Flags().Int("offset", 0, "skip this many records")
	logCmd.Flags().Bool("link", false, "print the link history")
}

func printFlightLog(
	ctx context.Context,
	reader datarecording.DataReader,
	filter flightlog.Filter,
) error {
	records, total, err := flightlog.Read(ctx, reader, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOBJECT\tID\tINST\tPAYLOAD")

	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			r.Timestamp.Format(time.RFC3339Nano), r.Name, r.Obj, r.Instance,
			hex.EncodeToString(r.Payload))
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d of %d records\n", len(records), total)

	return nil
}

func printLinkHistory(
	ctx context.Context,
	reader datarecording.DataReader,
	limit, offset int,
) error {
	reader.MapTable(tracing.LinkTableName, tracing.LinkEntry{})

	rows, total, err := reader.Query(ctx, tracing.LinkTableName,
		datarecording.QueryParams{
			OrderBy: "Time ASC",
			Limit:   limit,
			Offset:  offset,
		})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tFROM\tTO\tPEER\tTX B/s\tRX B/s\tTX FAIL\tRETRIES")

	for _, row := range rows {
		e := row.(tracing.LinkEntry)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%.0f\t%d\t%d\n",
			time.Unix(0, e.Time).Format(time.RFC3339), e.FromStatus,
			e.ToStatus, e.PeerStatus, e.TxDataRate, e.RxDataRate,
			e.TxFailures, e.TxRetries)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d of %d periods\n", len(rows), total)

	return nil
}
