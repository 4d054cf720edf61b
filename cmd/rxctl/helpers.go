package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Skufu/rxcompass/internal/logging"
)

func commandLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level, _ := cmd.Root().PersistentFlags().GetString("log-level")
	return logging.New(logging.Options{Env: "production", Level: level}, cmd.ErrOrStderr())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
