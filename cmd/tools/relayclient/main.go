// relayclient 是实时识别中继的命令行测试工具：推送本地音频并打印服务端事件，
// 或直接调用翻译接口。
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relayclient",
	Short: "Manual client for the live interpreter relay",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			log.Debug("no .env file, using system environment", "err", err)
		}
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(streamCmd, translateCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
