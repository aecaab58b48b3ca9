package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/health"
	"github.com/martinemde/oxbot/provider"
)

func runHealth(cmd *cobra.Command, flags *globalFlags) error {
	store, err := openSettings(flags)
	if err != nil {
		return err
	}
	s := store.Settings()
	pc, err := s.ProviderConfig()
	if err != nil {
		return err
	}
	adapter, err := provider.NewAdapter(pc)
	if err != nil {
		return err
	}
	interp := engine.NewInterpreter()
	interp.SetProvider(adapter, pc)

	r := health.NewMonitor(interp, health.WithTimeout(s.Health.Timeout)).CheckNow(cmd.Context())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "endpoint: %s\nmodel:    %s\nstatus:   %s\n", pc.Endpoint, pc.Model, r.Status)
	if r.Status != health.StatusOnline {
		return fmt.Errorf("endpoint %s is %s: %s", pc.Endpoint, r.Status, r.Message)
	}
	fmt.Fprintf(out, "latency:  %s\n", r.Latency.Round(time.Millisecond))
	return nil
}
