package main

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-cache",
	Short: "Delete expired discovery, review and flag entries from the vector cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.store.CleanupExpiredCache(cmd.Context())
		if err != nil {
			return err
		}
		logrus.Infof("[CACHE] removed %s expired entries", humanize.Comma(int64(removed)))
		return nil
	},
}
