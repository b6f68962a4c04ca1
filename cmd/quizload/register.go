package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"quizload/internal/registration"
)

var registerDevices int

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register devices and print their credentials",
	Long:  "register only runs the registration phase and prints the resulting pool as JSON, for pre-provisioning or debugging.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("devices") {
			cfg.Devices = registerDevices
		}
		reg, err := registration.New(cfg.Registration, logger)
		if err != nil {
			return err
		}
		pool, err := reg.RegisterPool(cmd.Context(), cfg.Devices, cfg.IDPrefix, cfg.NamePrefix)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(pool)
	},
}

func init() {
	registerCmd.Flags().IntVar(&registerDevices, "devices", 0, "Override the number of devices to register")
}
