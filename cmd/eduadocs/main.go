// Package main 终端版教学文档向导，与 HTTP 服务共用同一套向导服务。
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/eduadocs/backend/config"
)

var rootCmd = &cobra.Command{
	Use:   "eduadocs",
	Short: "Interactive educational document wizard",
	Long: `eduadocs walks through the document wizard in the terminal: fill in the
form, review and edit the generated draft, approve it and export the final
document (txt, md, html or zip) to the output directory.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := runOptions{}
		opts.outDir, _ = cmd.Flags().GetString("out")
		opts.format, _ = cmd.Flags().GetString("format")
		opts.documents, _ = cmd.Flags().GetStringSlice("docs")
		if opts.format == "" {
			opts.format = cfg.Export.DefaultFormat
		}
		return run(cmd.Context(), cfg, opts)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.Flags().String("out", ".", "directory the final document is written to")
	rootCmd.Flags().String("format", "", "default export format: txt, md, html or zip")
	rootCmd.Flags().StringSlice("docs", nil, "PDF or TXT reference documents to upload before starting")

	// klog 参数挂到 cobra 上，例如 --v=6
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.GetConfig(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// 指定的配置文件同时作为全局配置
	config.UpdateConfig(cfg)
	return cfg, nil
}

func main() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
