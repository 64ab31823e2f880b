package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/live-interpreter/backend/internal/service/translation"
)

var (
	endpoint   string
	variant    string
	region     string
	sourceLang string
	targetLang string
	timeout    time.Duration
)

var translateCmd = &cobra.Command{
	Use:   "translate [text...]",
	Short: "Call the translator endpoint directly",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if endpoint == "" {
			endpoint = os.Getenv("TRANSLATOR_ENDPOINT")
		}
		if region == "" {
			region = os.Getenv("TRANSLATOR_REGION")
		}

		key := os.Getenv("TRANSLATOR_KEY")
		if key == "" {
			return fmt.Errorf("TRANSLATOR_KEY is required")
		}

		client, err := translation.NewClient(translation.Config{
			Variant:  translation.Variant(variant),
			Endpoint: endpoint,
			Region:   region,
			Timeout:  timeout,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		res, err := client.Translate(ctx, translation.Request{
			Text:       strings.Join(args, " "),
			SourceLang: sourceLang,
			TargetLang: targetLang,
			Credential: key,
		})
		if err != nil {
			return fmt.Errorf("translate (status %d): %w", translation.HTTPStatus(err), err)
		}
		fmt.Println(res.Text)
		return nil
	},
}

func init() {
	translateCmd.Flags().StringVar(&endpoint, "endpoint", "", "translator resource endpoint, defaults to TRANSLATOR_ENDPOINT")
	translateCmd.Flags().StringVar(&variant, "variant", "preview", "legacy | preview")
	translateCmd.Flags().StringVar(&region, "region", "", "subscription region for the legacy variant, defaults to TRANSLATOR_REGION")
	translateCmd.Flags().StringVar(&sourceLang, "from", "en", "source language")
	translateCmd.Flags().StringVar(&targetLang, "to", "ja", "target language")
	translateCmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
}
