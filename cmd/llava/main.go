package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/llava/cmd/llava/chat"
	"github.com/ardanlabs/llava/cmd/llava/libs"
	"github.com/ardanlabs/llava/cmd/llava/paths"
	"github.com/ardanlabs/llava/cmd/llava/pull"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "llava",
	Short: "Chat with a llava vision model about an image",
	Long:  "Chat with a llava vision model about an image, locally, with llama.cpp integrated via yzma.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.SetVersionTemplate(version)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(libsCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pathsCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session

Commands inside the session:
      /image <file> [message]   Attach an image to the next message
      /reset                    Clear the conversation and reload the model
      /stats                    Show engine metrics
      /quit                     Exit

Run "llava chat --help" for the configuration flags and LLAVA_ environment variables.`,
	DisableFlagParsing: true,
	Run:                runChat,
}

var libsCmd = &cobra.Command{
	Use:   "libs",
	Short: "Install or upgrade llama.cpp libraries",
	Long: `Install or upgrade llama.cpp libraries

Environment Variables:
      LLAVA_LIB_PATH   (default: $HOME/.llava/libraries)  The path to the libraries directory
      LLAVA_PROCESSOR  (default: cpu)                     Options: cpu, cuda, metal, vulkan`,
	Args: cobra.NoArgs,
	Run:  runLibs,
}

var pullCmd = &cobra.Command{
	Use:   "pull <MODEL_URL> <MMPROJ_URL>",
	Short: "Pull a model and its mmproj projector file",
	Long: `Pull a model and its mmproj projector file

Environment Variables:
      LLAVA_MODELS  (default: $HOME/.llava/models)  The path to the models directory`,
	Args: cobra.ExactArgs(2),
	Run:  runPull,
}

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show the library and model locations",
	Long: `Show the library and model locations

Environment Variables:
      LLAVA_BASE_PATH  (default: $HOME/.llava)            The base path for llava files
      LLAVA_LIB_PATH   (default: $HOME/.llava/libraries)  The path to the libraries directory
      LLAVA_MODELS     (default: $HOME/.llava/models)     The path to the models directory`,
	Args: cobra.NoArgs,
	Run:  runPaths,
}

func init() {
	libsCmd.Flags().String("processor", "", "Options: cpu, cuda, metal, vulkan")
	libsCmd.Flags().Bool("upgrade", true, "Upgrade the libraries when a new version is available")
}

func runChat(cmd *cobra.Command, args []string) {
	if err := chat.Run(version); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return
		}

		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}

func runLibs(cmd *cobra.Command, args []string) {
	processor, _ := cmd.Flags().GetString("processor")
	upgrade, _ := cmd.Flags().GetBool("upgrade")

	if err := libs.Run(processor, upgrade); err != nil {
		if errors.Is(err, libs.ErrInvalidArguments) {
			cmd.Help()
			os.Exit(1)
		}

		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}

func runPull(cmd *cobra.Command, args []string) {
	if err := pull.Run(args); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}

func runPaths(cmd *cobra.Command, args []string) {
	if err := paths.Run(os.Stdout); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}
