package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
	"github.com/joseph-ayodele/invoice-pipeline/internal/server"
)

var (
	remoteAddr    string
	remoteTimeout time.Duration
	remoteUser    string
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Talk to a running invoiced daemon",
}

var remoteSubmitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Upload a file and print the queued job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := ingest.LoadFile(args[0], cfg.Pipeline.MaxFileBytes())
		if err != nil {
			return err
		}
		return withClient(cmd, func(c *server.Client) (proto.Message, error) {
			ctx, cancel := contextTimeout(cmd)
			defer cancel()
			return c.Submit(ctx, remoteUser, src.Name, src.MIMEType, src.Data)
		})
	},
}

var remoteStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print the state of an upload job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *server.Client) (proto.Message, error) {
			ctx, cancel := contextTimeout(cmd)
			defer cancel()
			return c.GetStatus(ctx, args[0])
		})
	},
}

var remoteJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List upload jobs for a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(c *server.Client) (proto.Message, error) {
			ctx, cancel := contextTimeout(cmd)
			defer cancel()
			return c.ListJobs(ctx, remoteUser)
		})
	},
}

var remoteRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Retry a failed upload job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *server.Client) (proto.Message, error) {
			ctx, cancel := contextTimeout(cmd)
			defer cancel()
			return c.Retry(ctx, args[0])
		})
	},
}

var remoteCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Abort a queued or running upload job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *server.Client) (proto.Message, error) {
			ctx, cancel := contextTimeout(cmd)
			defer cancel()
			return c.Cancel(ctx, args[0])
		})
	},
}

func init() {
	remoteCmd.PersistentFlags().StringVar(&remoteAddr, "addr", "localhost:8080", "invoiced gRPC address")
	remoteCmd.PersistentFlags().DurationVar(&remoteTimeout, "timeout", 30*time.Second, "per-call timeout")
	remoteCmd.PersistentFlags().StringVar(&remoteUser, "user", "local", "user id for submit and jobs")
	remoteCmd.AddCommand(remoteSubmitCmd, remoteStatusCmd, remoteJobsCmd, remoteRetryCmd, remoteCancelCmd)
	rootCmd.AddCommand(remoteCmd)
}

func withClient(cmd *cobra.Command, call func(*server.Client) (proto.Message, error)) error {
	conn, err := grpc.NewClient(remoteAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(maxSendSize(cfg.Pipeline.MaxFileBytes()))),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", remoteAddr, err)
	}
	defer conn.Close()

	out, err := call(server.NewClient(conn))
	if err != nil {
		return err
	}
	b, err := protojson.MarshalOptions{Multiline: true}.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func contextTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), remoteTimeout)
}

func maxSendSize(maxFile int64) int {
	if maxFile <= 0 {
		return 64 << 20
	}
	return int(maxFile)*2 + 1<<20
}
