package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/oxbot/provider"
	"github.com/martinemde/oxbot/settings"
)

const hiddenCredential = "********"

func runConfigShow(cmd *cobra.Command, flags *globalFlags) error {
	store, err := openSettings(flags)
	if err != nil {
		return err
	}
	s := store.Settings()
	s.Provider.Local.Credential = hideCredential(s.Provider.Local.Credential)
	s.Provider.Remote.Credential = hideCredential(s.Provider.Remote.Credential)

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", store.Path(), data)
	return nil
}

func runConfigGet(cmd *cobra.Command, flags *globalFlags, key string) error {
	store, err := openSettings(flags)
	if err != nil {
		return err
	}
	v, err := store.Get(key)
	if err != nil {
		return err
	}
	if section, ok := v.(map[string]any); ok {
		data, err := yaml.Marshal(section)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runConfigSet(cmd *cobra.Command, flags *globalFlags, key, value string) error {
	store, err := openSettings(flags)
	if err != nil {
		return err
	}
	if err := store.Set(key, value); err != nil {
		return err
	}
	if err := store.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s updated in %s\n", key, store.Path())
	return nil
}

func runConfigPath(cmd *cobra.Command, flags *globalFlags) error {
	path := flags.configPath
	if path == "" {
		var err error
		if path, err = settings.DefaultPath(); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func hideCredential(c string) string {
	if c == "" || c == provider.PlaceholderCredential {
		return c
	}
	return hiddenCredential
}
