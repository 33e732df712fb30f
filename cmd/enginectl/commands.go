package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rickgao/engine-bridge/internal/bridge"
	"github.com/rickgao/engine-bridge/internal/model"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the engine graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
				g, err := c.Graph(ctx)
				if err != nil {
					return err
				}
				return printJSON(g)
			})
		},
	}
}

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Read or delete graph nodes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <id>",
			Short: "Print a node",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
					n, err := c.Node(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(n)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a node",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
					if err := c.DeleteNode(ctx, args[0]); err != nil {
						return err
					}
					printOK("node %s deleted", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func newEdgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Read or delete graph edges",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <id>",
			Short: "Print an edge",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
					e, err := c.Edge(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(e)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete an edge",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
					if err := c.DeleteEdge(ctx, args[0]); err != nil {
						return err
					}
					printOK("edge %s deleted", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func newOrchestrateCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "orchestrate <payload-json>",
		Short: "Submit an orchestration request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[0])) {
				return fmt.Errorf("payload is not valid JSON")
			}
			return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
				res, err := c.Orchestrate(ctx, model.OrchestrationRequest{
					ID:      id,
					Payload: json.RawMessage(args[0]),
				})
				if res != nil {
					printJSON(res)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "orchestration id")
	return cmd
}

func newApprovalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approvals",
		Short: "List pending approvals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
				approvals, err := c.PendingApprovals(ctx)
				if err != nil {
					return err
				}
				if len(approvals) == 0 {
					color.New(color.FgYellow).Println("No pending approvals")
					return nil
				}
				for _, a := range approvals {
					fmt.Printf("%s  %-12s %s\n", color.CyanString(a.ID), a.Type, a.RequestedAt)
				}
				return nil
			})
		},
	}
}

func newApproveCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
				a, err := c.Approve(ctx, args[0], comment)
				if err != nil {
					return err
				}
				printOK("approval %s is %s", a.ID, a.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "optional comment")
	return cmd
}

func newRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
				a, err := c.Reject(ctx, args[0], reason)
				if err != nil {
					return err
				}
				printOK("approval %s is %s", a.ID, a.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "rejection reason (required)")
	cmd.MarkFlagRequired("reason")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var node, edge string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the graph, a node or an edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
				var (
					res *model.ValidationResult
					err error
				)
				switch {
				case node != "":
					res, err = c.ValidateNode(ctx, node)
				case edge != "":
					res, err = c.ValidateEdge(ctx, edge)
				default:
					res, err = c.ValidateGraph(ctx)
				}
				if err != nil {
					return err
				}
				printValidation(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&node, "node", "", "validate a single node")
	cmd.Flags().StringVar(&edge, "edge", "", "validate a single edge")
	cmd.MarkFlagsMutuallyExclusive("node", "edge")
	return cmd
}

func printValidation(res *model.ValidationResult) {
	if res.Valid {
		printOK("valid (%d warnings)", len(res.Warnings))
	} else {
		color.Red("✗ invalid (%d errors, %d warnings)", len(res.Errors), len(res.Warnings))
	}
	for _, issue := range res.Errors {
		fmt.Printf("  %s %s: %s\n", color.RedString("error"), issue.Code, issue.Message)
	}
	for _, issue := range res.Warnings {
		fmt.Printf("  %s %s: %s\n", color.YellowString("warn "), issue.Code, issue.Message)
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run a health check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
				status := c.Health().Check(ctx)

				printField("Status", levelColor(status.Status).Sprint(status.Status))
				printField("Checked", status.Timestamp.Format("2006-01-02 15:04:05"))

				names := make([]string, 0, len(status.Services))
				for name := range status.Services {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					s := status.Services[name]
					printField(name, serviceColor(s).Sprint(s))
				}

				if d, err := c.Ping(ctx); err == nil {
					printField("Latency", d)
				}
				if status.Status == model.Unhealthy {
					return fmt.Errorf("engine is unhealthy")
				}
				return nil
			})
		},
	}
}

func newDiagnosticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Print connection and system diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *bridge.Client) error {
				c.Health().Check(ctx)
				return printJSON(c.Health().RunDiagnostics(ctx))
			})
		},
	}
}

func levelColor(l model.HealthLevel) *color.Color {
	switch l {
	case model.Healthy:
		return color.New(color.FgGreen)
	case model.Degraded:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func serviceColor(s model.ServiceStatus) *color.Color {
	switch s {
	case model.ServiceConnected:
		return color.New(color.FgGreen)
	case model.ServiceDisconnected:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
