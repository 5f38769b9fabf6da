// Package push provides the push command for kintone upload
package push

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/kintone"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

// Command creates and returns the push command
func Command(rt *runtime.Context) *cobra.Command {
	var (
		lot   string
		check bool
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload defects and repairs to kintone",
		Long: `Push upserts the stored defects (optionally one lot) and their repairs into the
configured kintone app and saves the returned kintone record ids locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.KintoneClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if check {
				if !client.IsConnected(cmd.Context()) {
					return errors.Newf("kintone app %d is not reachable", rt.Settings.Kintone.AppID).
						Category(errors.CategoryNetwork).
						Build()
				}
				fmt.Fprintln(cmd.OutOrStdout(), "kintone connection ok")
				return nil
			}

			store, err := rt.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := kintone.SyncStore(cmd.Context(), client, store, lot)
			if err != nil {
				return err
			}

			rt.Logger().Info("pushed to kintone",
				logger.String("lot", lot),
				logger.Int("defects", res.Defects),
				logger.Int("repairs", res.Repairs))
			summary := fmt.Sprintf("pushed %d defects, %d repairs", res.Defects, res.Repairs)
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			rt.Notify("AOI kintone push", summary)
			return nil
		},
	}

	cmd.Flags().StringVarP(&lot, "lot", "l", "", "Only push this lot")
	cmd.Flags().BoolVar(&check, "check", false, "Only verify the kintone connection")

	return cmd
}
