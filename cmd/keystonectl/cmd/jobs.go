package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/keystone-admin/keystone/internal/app"
	"github.com/keystone-admin/keystone/jobs"
)

// queueOps wraps the asynq client and inspector used by the jobs commands.
type queueOps struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func newQueueOps(redisAddr string) (*queueOps, error) {
	opts, err := jobs.RedisOpt(redisAddr)
	if err != nil {
		return nil, err
	}
	return &queueOps{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

func (q *queueOps) Close() error {
	return errors.Join(q.inspector.Close(), q.client.Close())
}

// trigger enqueues a maintenance task by name.
func (q *queueOps) trigger(ctx context.Context, name string, retention time.Duration) (*asynq.TaskInfo, error) {
	switch name {
	case jobs.TaskAuditPurge, "purge":
		task, err := jobs.NewAuditPurgeTask(retention)
		if err != nil {
			return nil, err
		}
		return q.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	default:
		return nil, fmt.Errorf("unsupported job %q", name)
	}
}

// queueStats summarises one queue.
type queueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

func (q *queueOps) stats(queue string) (queueStats, error) {
	info, err := q.inspector.GetQueueInfo(queue)
	if err != nil {
		return queueStats{}, err
	}
	return queueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

var retentionFlag time.Duration

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger background jobs",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth for the audit and default queues",
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := queueOpsFromConfig()
		if err != nil {
			return err
		}
		defer ops.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-10s %8s %8s %10s %8s %9s\n", "QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED")
		for _, queue := range []string{jobs.QueueAudit, jobs.QueueDefault} {
			s, err := ops.stats(queue)
			if err != nil {
				fmt.Fprintf(out, "%-10s unavailable: %v\n", queue, err)
				continue
			}
			fmt.Fprintf(out, "%-10s %8d %8d %10d %8d %9d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
		return nil
	},
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger <job>",
	Short: "Enqueue a maintenance job now (supported: audit:purge)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		retention := cfg.AuditRetention
		if retentionFlag > 0 {
			retention = retentionFlag
		}
		ops, err := newQueueOps(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer ops.Close()

		info, err := ops.trigger(cmd.Context(), args[0], retention)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	},
}

func init() {
	jobsTriggerCmd.Flags().DurationVar(&retentionFlag, "retention", 0, "override AUDIT_RETENTION for audit:purge")
	jobsCmd.AddCommand(jobsStatsCmd)
	jobsCmd.AddCommand(jobsTriggerCmd)
}

func queueOpsFromConfig() (*queueOps, error) {
	cfg, err := app.LoadConfig(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newQueueOps(cfg.RedisAddr)
}
