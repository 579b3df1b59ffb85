package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/RecoveryAshes/sitewalker/internal/core"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/RecoveryAshes/sitewalker/internal/sphere"
	"github.com/RecoveryAshes/sitewalker/internal/utils"
	"github.com/spf13/cobra"
)

var (
	sessionDebugPort int
	runningOnly      bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "管理指纹浏览器会话",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出控制API中的全部会话",
	RunE: func(cmd *cobra.Command, args []string) error {
		broker, err := newBroker()
		if err != nil {
			return err
		}
		ctx := context.Background()

		var sessions []models.BrowserSession
		if runningOnly {
			sessions, err = broker.RunningSessions(ctx)
		} else {
			sessions, err = broker.ListSessions(ctx)
		}
		if err != nil {
			return err
		}
		printSessions(sessions)
		return nil
	},
}

var sessionsStartCmd = &cobra.Command{
	Use:   "start <uuid>",
	Short: "启动会话并确认调试端口",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnvironment()
		if err != nil {
			return err
		}
		broker := brokerFor(env)
		ctx := context.Background()

		port := appConfig.Session.DebugPort
		if cmd.Flags().Changed("debug-port") {
			port = sessionDebugPort
		}
		session, err := broker.StartSession(ctx, args[0], port)
		if err != nil {
			return err
		}
		live, err := env.Prober.Find(ctx, session.DebugPort)
		if err != nil {
			return err
		}
		fmt.Printf("✅ 会话已启动: %s\n", session.ProfileID)
		fmt.Printf("调试端点: %s:%d\n", env.Prober.Host(), live)
		if !session.Owned {
			fmt.Println("(会话在启动前已经运行)")
		}
		return nil
	},
}

var sessionsStopCmd = &cobra.Command{
	Use:   "stop <uuid>",
	Short: "停止会话",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		broker, err := newBroker()
		if err != nil {
			return err
		}
		if err := broker.StopSession(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✅ 会话已停止: %s\n", args[0])
		return nil
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "用默认参数快速创建配置文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		broker, err := newBroker()
		if err != nil {
			return err
		}
		session, err := broker.CreateQuickSession(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("✅ 已创建: %s (%s)\n", session.Name, session.ProfileID)
		return nil
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "显示配置文件池及各自的调试端口",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnvironment()
		if err != nil {
			return err
		}
		fleet := core.NewFleet(env, core.FleetConfig{ProfilesFile: appConfig.Session.ProfilesFile}, nil)
		if err := fleet.Prepare(context.Background()); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLOT\tPROFILE\tDEBUG PORT")
		for _, id := range env.Pool.IDs() {
			slot := env.Pool.Slot(id)
			fmt.Fprintf(w, "%d\t%s\t%d\n", slot, id, appConfig.Session.DebugPort+slot)
		}
		return w.Flush()
	},
}

// newBroker 创建命令行使用的会话代理,头部来自全局参数
func newBroker() (*sphere.Broker, error) {
	env, err := newEnvironment()
	if err != nil {
		return nil, err
	}
	return brokerFor(env), nil
}

func brokerFor(env *core.Environment) *sphere.Broker {
	retrier := browsing.NewRetrier(
		appConfig.Browsing.MaxRetries,
		time.Duration(appConfig.Browsing.RetryDelay)*time.Second,
		nil, nil, utils.Logger,
	)
	return sphere.NewBroker(env.Client, env.Prober, env.Dialer, retrier, sphere.BrokerConfig{
		Headless:   appConfig.Session.Headless,
		StopOnExit: false,
	}, utils.Logger)
}

func printSessions(sessions []models.BrowserSession) {
	if len(sessions) == 0 {
		fmt.Println("没有会话")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUUID\tSTATUS\tPROXY\tDEBUG PORT")
	for _, s := range sessions {
		port := "-"
		if s.HasDebugEndpoint() {
			port = fmt.Sprint(s.DebugPort)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.ProfileID, s.Status, s.ProxyProtocol(), port)
	}
	_ = w.Flush()
}

func init() {
	sessionsListCmd.Flags().BoolVar(&runningOnly, "running", false, "只显示运行中的会话")
	sessionsStartCmd.Flags().IntVar(&sessionDebugPort, "debug-port", 12345, "首选调试端口")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsStartCmd, sessionsStopCmd, sessionsCreateCmd)
}
