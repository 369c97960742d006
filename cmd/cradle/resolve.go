package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencradle/cradle/pkg/resolve"
	"github.com/opencradle/cradle/pkg/resources"
	"github.com/opencradle/cradle/pkg/rpcclient"
	"github.com/opencradle/cradle/pkg/value"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <request.json>",
	Short: "Resolve a serialized request",
	Long: `Resolve a request from its JSON serialization, locally or against a
remote server, and print the resulting value.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		seriReq, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		res, err := resources.New(cfg)
		if err != nil {
			return err
		}
		defer res.Close()
		registerCatalogs(res)

		rctx := &resolve.Context{Res: res, Retrier: resolve.DefaultRetrier{}}
		if server != "" {
			client, err := rpcclient.New("server", server)
			if err != nil {
				return err
			}
			defer client.Close()
			res.Proxies.Register(client)
			rctx.Proxy = client
			rctx.Retrier = resolve.ProxyRetrier{}
		}

		data, _, err := resolve.ResolveSerialized(context.Background(), rctx, seriReq, false)
		if err != nil {
			return err
		}
		v, err := value.Decode(data)
		if err != nil {
			return err
		}
		fmt.Printf("%v\n", v)
		return nil
	},
}

var cacheInfoCmd = &cobra.Command{
	Use:   "cache-info",
	Short: "Show memory cache summary information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		res, err := resources.New(cfg)
		if err != nil {
			return err
		}
		defer res.Close()

		info := res.Cache.GetSummaryInfo()
		fmt.Printf("AC records:          %d\n", info.AcNumRecords)
		fmt.Printf("AC in use:           %d\n", info.AcNumRecordsInUse)
		fmt.Printf("AC pending eviction: %d\n", info.AcNumRecordsPendingEviction)
		fmt.Printf("CAS records:         %d\n", info.CasNumRecords)
		fmt.Printf("CAS total size:      %d bytes\n", info.CasTotalSize)
		return nil
	},
}

func init() {
	resolveCmd.Flags().String("server", "", "Resolve against a remote server (host:port) instead of locally")
}
