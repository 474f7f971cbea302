package vlmctl

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// defaultConfig seeds connection settings from the environment.
func defaultConfig() *Config {
	return &Config{
		ServerURL:  envStr("VLMCTL_SERVER", "http://127.0.0.1:8899"),
		APIKey:     envStr("VLMCTL_API_KEY", ""),
		TimeoutSec: envInt("VLMCTL_TIMEOUT_SEC", 120),
		LogLvl:     envStr("VLMCTL_LOG_LEVEL", "info"),
	}
}

// buildRootCmd constructs the Cobra command tree wired to the fn* actions.
func buildRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "vlmctl",
		Short:         "Client for a vlmd vision-language server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags -> Config
	root.PersistentFlags().String("server", cfg.ServerURL, "Server base URL (defaults VLMCTL_SERVER)")
	root.PersistentFlags().String("api-key", cfg.APIKey, "API key (defaults VLMCTL_API_KEY)")
	root.PersistentFlags().Int("timeout-sec", cfg.TimeoutSec, "Request timeout in seconds")
	root.PersistentFlags().String("log-level", cfg.LogLvl, "Log level: debug|info|warn|error")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		flags := cmd.InheritedFlags()
		if f := flags.Lookup("server"); f != nil && f.Value.String() != "" {
			cfg.ServerURL = f.Value.String()
		}
		if f := flags.Lookup("api-key"); f != nil && f.Value.String() != "" {
			cfg.APIKey = f.Value.String()
		}
		if f := flags.Lookup("timeout-sec"); f != nil {
			var n int
			_, _ = fmt.Sscanf(f.Value.String(), "%d", &n)
			if n != 0 {
				cfg.TimeoutSec = n
			}
		}
		if f := flags.Lookup("log-level"); f != nil && f.Value.String() != "" {
			cfg.LogLvl = f.Value.String()
		}
		SetLogLevel(cfg.LogLvl)
	}

	healthCmd := &cobra.Command{
		Use:     "health",
		Short:   "Show server liveness and slot capacity",
		Example: "  vlmctl health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnHealth(cmd.Context(), cfg)
		},
	}

	modelsCmd := &cobra.Command{
		Use:     "models",
		Short:   "List models served by the endpoint",
		Example: "  vlmctl models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnModels(cmd.Context(), cfg)
		},
	}

	chatOpts := &chatOptions{}
	chatCmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Send a chat completion, optionally with images or one video",
		Example: "  vlmctl chat \"What is in this picture?\" --image cat.png\n" +
			"  vlmctl chat --image cat.png --image dog.png --stream\n" +
			"  vlmctl chat \"Summarize\" --video clip.mp4",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" && len(chatOpts.Images) == 0 && chatOpts.Video == "" {
				return fmt.Errorf("chat needs a prompt, --image or --video")
			}
			return fnChat(cmd.Context(), cfg, prompt, chatOpts)
		},
	}
	chatCmd.Flags().StringVar(&chatOpts.Model, "model", "qwen3-vl-instruct", "Model id to request")
	chatCmd.Flags().StringArrayVar(&chatOpts.Images, "image", nil, "Image path or URL, repeatable")
	chatCmd.Flags().StringVar(&chatOpts.Video, "video", "", "Video path on the server")
	chatCmd.Flags().BoolVar(&chatOpts.Inline, "inline", false, "Send local images as data URIs instead of paths")
	chatCmd.Flags().BoolVar(&chatOpts.Stream, "stream", false, "Stream tokens as they are generated")
	chatCmd.Flags().IntVar(&chatOpts.MaxTokens, "max-tokens", 0, "Generation token cap, 0 = server default")
	chatCmd.Flags().Float32Var(&chatOpts.Temperature, "temperature", 0, "Sampling temperature, 0 = server default")
	chatCmd.Flags().Float32Var(&chatOpts.TopP, "top-p", 0, "Nucleus sampling mass, 0 = server default")

	descOpts := &describeOptions{}
	describeCmd := &cobra.Command{
		Use:   "describe FILE",
		Short: "Upload an image or video and print its description",
		Example: "  vlmctl describe cat.png\n" +
			"  vlmctl describe clip.mp4 --prompt \"What happens here?\" --stream",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnDescribe(cmd.Context(), cfg, args[0], descOpts)
		},
	}
	describeCmd.Flags().StringVar(&descOpts.Prompt, "prompt", "", "Instruction, empty = server default")
	describeCmd.Flags().IntVar(&descOpts.MaxTokens, "max-tokens", 0, "Generation token cap, 0 = server default")
	describeCmd.Flags().BoolVar(&descOpts.Stream, "stream", false, "Stream tokens as they are generated")

	root.AddCommand(healthCmd, modelsCmd, chatCmd, describeCmd)
	return root
}

// MainWithArgs runs the CLI with the given args and returns the exit code.
func MainWithArgs(args []string) int {
	cfg := defaultConfig()
	root := buildRootCmd(cfg)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

// Main is the process entry used by cmd/vlmctl.
func Main() int { return MainWithArgs(os.Args[1:]) }
