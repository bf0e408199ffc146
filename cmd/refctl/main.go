package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/database"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/service"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/refclient"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/signature"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "refctl",
		Short:         "推荐服务运维工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedKeysCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(creditCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "创建或更新表结构",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(&cfg.Database)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrate ok")
			return nil
		},
	}
}

func seedKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-keys",
		Short: "按配置写入三个角色的 API Key 哈希",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(&cfg.Database)
			if err != nil {
				return err
			}

			svc := service.NewCredentialService(repository.NewAPIKeyRepository(db), cfg.Auth.BcryptCost)
			summary := svc.EnsureCredentials(cmd.Context(), service.RoleSecrets{
				Writer: cfg.Auth.WriterKey,
				Admin:  cfg.Auth.AdminKey,
				SA:     cfg.Auth.SAKey,
			})
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
}

// readBody 参数为空或 "-" 时读标准输入
func readBody(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func resolveSecret(flagSecret string) (string, error) {
	if flagSecret != "" {
		return flagSecret, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Signing.Secret == "" {
		return "", fmt.Errorf("未配置签名密钥")
	}
	return cfg.Signing.Secret, nil
}

func signCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "计算请求体签名（sha256=<hex>）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveSecret(secret)
			if err != nil {
				return err
			}
			body, err := readBody(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signature.Sign(body, key))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "签名密钥，默认取配置")
	return cmd
}

func verifyCmd() *cobra.Command {
	var secret, sig string
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "校验请求体签名",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveSecret(secret)
			if err != nil {
				return err
			}
			body, err := readBody(cmd, args)
			if err != nil {
				return err
			}
			if !signature.Verify(body, key, sig) {
				return fmt.Errorf("签名不匹配")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "签名密钥，默认取配置")
	cmd.Flags().StringVar(&sig, "sig", "", "待校验的签名")
	_ = cmd.MarkFlagRequired("sig")
	return cmd
}

// creditCmd 手工补录一条积分流水，走和账单系统相同的签名接口
func creditCmd() *cobra.Command {
	var (
		baseURL, invoiceID, customerCode, refCode, subtotal, gst, litres string
		timeout                                                          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "credit",
		Short: "向推荐服务补录积分流水",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = cfg.ReferralHook.BaseURL
			}

			payload := refclient.CreditPayload{
				InvoiceID:    invoiceID,
				CustomerCode: customerCode,
				RefCode:      refCode,
			}
			if payload.Subtotal, err = optionalDecimal("subtotal", subtotal); err != nil {
				return err
			}
			if payload.GST, err = optionalDecimal("gst", gst); err != nil {
				return err
			}
			if payload.Litres, err = optionalDecimal("litres", litres); err != nil {
				return err
			}

			client := refclient.New(refclient.Config{
				BaseURL:    baseURL,
				SigningKey: cfg.Signing.Secret,
				Timeout:    timeout,
			})
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout+time.Second)
			defer cancel()

			res, err := client.PostCredit(ctx, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "推荐服务地址，默认取 referral_hook.base_url")
	cmd.Flags().StringVar(&invoiceID, "invoice", "", "发票号")
	cmd.Flags().StringVar(&customerCode, "customer", "", "客户码")
	cmd.Flags().StringVar(&refCode, "ref", "", "推荐码")
	cmd.Flags().StringVar(&subtotal, "subtotal", "", "小计")
	cmd.Flags().StringVar(&gst, "gst", "", "税额")
	cmd.Flags().StringVar(&litres, "litres", "", "升数")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "请求超时")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

// optionalDecimal 未填写时按 0 处理
func optionalDecimal(name, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s 不是合法数字: %w", name, err)
	}
	return d, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
